// Package build orchestrates one site build: scan, classify, resolve, copy,
// and cache persistence.
package build

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuild/internal/classify"
	"git.home.luguber.info/inful/sitebuild/internal/config"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
	"git.home.luguber.info/inful/sitebuild/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
	"git.home.luguber.info/inful/sitebuild/internal/metrics"
	"git.home.luguber.info/inful/sitebuild/internal/scan"
	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// Builder drives the build phases over one Session.
type Builder struct {
	s *Session
}

// NewBuilder creates a Builder for the session.
func NewBuilder(s *Session) *Builder { return &Builder{s: s} }

// Session exposes the underlying session (the dev server reuses it for
// incremental rebuilds).
func (b *Builder) Session() *Session { return b.s }

// Run executes a full build: scan → register fragments → classify → resolve
// and write pages → copy assets → persist cache. Per-file failures are
// recorded and the run continues, unless fail-fast mode aborts on the first
// one.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	s := b.s
	start := time.Now()
	report := &Report{BuildID: s.ID, Deps: s.Deps, Assets: s.Assets, Cache: s.Cache}

	if s.Opts.Clean {
		if err := os.RemoveAll(s.OutputRoot); err != nil {
			return report, sberrors.FileSystemError("clean", s.OutputRoot, err)
		}
	}
	if s.Opts.CacheEnabled() {
		s.Cache.Load(ctx)
	}

	files, err := s.Scanner.Scan()
	if err != nil {
		return report, err
	}

	// Pass 1: register known layout/include files so auto-ignore can see
	// them. Pass 2 below classifies; registration strictly precedes it.
	s.registerFragments(files)

	emits, copies := s.classifyAll(files, report)
	for _, page := range emits {
		s.Deps.RegisterPage(page)
	}

	if err := s.resolvePhase(ctx, emits, report); err != nil {
		s.finish(report, start)
		return report, err
	}

	s.copyPass(copies, report)

	if s.Opts.Sitemap {
		rels := make([]string, 0, len(emits))
		for _, page := range emits {
			rels = append(rels, s.outputRel(page))
		}
		if serr := s.writeSitemap(rels); serr != nil {
			report.addError(serr)
		}
	}

	if s.Opts.CacheEnabled() {
		if serr := s.Cache.Save(ctx); serr != nil {
			report.addError(sberrors.CacheError("save", serr))
		}
	}

	s.finish(report, start)
	return report, report.Err()
}

func (s *Session) finish(report *Report, start time.Time) {
	report.Duration = time.Since(start)
	s.Metrics.ObserveBuildDuration(report.Duration)
	switch {
	case report.HasErrors():
		s.Metrics.IncBuildOutcome(metrics.OutcomeFailed)
	case len(report.Errors) > 0:
		s.Metrics.IncBuildOutcome(metrics.OutcomeWarning)
	default:
		s.Metrics.IncBuildOutcome(metrics.OutcomeSuccess)
	}
	s.Logger.Info("build finished",
		"processed", report.Processed,
		"copied", report.Copied,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
		"duration", report.Duration)
}

// registerFragments is the pre-scan pass: every file under the includes
// directory, and every layout referenced from Markdown frontmatter, is
// registered into the classifier before classification starts.
func (s *Session) registerFragments(files []scan.SourceFile) {
	for _, f := range files {
		if s.Classifier.InAssetsDir(f.Path) {
			continue
		}
		if inIncludesDir(f.Path, s.Opts.IncludesDir) && classify.Renderable(f.Path) {
			s.Classifier.RegisterFragment(f.Path)
			continue
		}
		if filepath.Ext(f.Path) != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.SourceRoot, filepath.FromSlash(f.Path)))
		if err != nil {
			continue
		}
		fm, _, had, serr := frontmatter.Split(raw)
		if serr != nil || !had {
			continue
		}
		fields, perr := frontmatter.ParseYAML(fm)
		if perr != nil {
			continue
		}
		meta := frontmatter.ParseMeta(fields)
		if meta.Layout == "" {
			continue
		}
		if layoutRel, ok := s.Resolver.LookupTarget(meta.Layout, f.Path); ok {
			s.Classifier.RegisterFragment(layoutRel)
		}
	}
}

func inIncludesDir(rel, includesDir string) bool {
	if includesDir == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == includesDir || len(rel) > len(includesDir) && rel[:len(includesDir)+1] == includesDir+"/"
}

// classifyAll classifies every scanned file and buckets the outcomes.
// SKIP-classified files still enter the copy bucket: the copy pass gates them
// on recorded references, so a plain file a page links to ships with the site
// while an unreferenced one stays behind.
func (s *Session) classifyAll(files []scan.SourceFile, report *Report) (emits, copies []string) {
	for _, f := range files {
		cls := s.Classifier.Classify(f.Path)
		switch cls.Action {
		case classify.ActionEmit:
			emits = append(emits, f.Path)
		case classify.ActionCopy, classify.ActionSkip:
			copies = append(copies, f.Path)
		default:
			s.Logger.Debug("file ignored", "path", f.Path, "reason", cls.Reason)
			report.addSkipped()
		}
	}
	return emits, copies
}

// resolvePhase builds all pages, fanning out across a bounded worker pool.
// Chains for different pages are independent; the trackers and cache
// serialize their own writes.
func (s *Session) resolvePhase(ctx context.Context, pages []string, report *Report) error {
	workers := s.Opts.Workers
	if workers > len(pages) && len(pages) > 0 {
		workers = len(pages)
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, max(workers, 1))
		mu       sync.Mutex
		fatalErr error
	)

	for _, page := range pages {
		mu.Lock()
		aborted := fatalErr != nil
		mu.Unlock()
		if aborted || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pageRel string) {
			defer wg.Done()
			defer func() { <-sem }()

			pageStart := time.Now()
			if berr := s.buildPage(pageRel, report); berr != nil {
				report.addError(berr)
				s.Logger.Error("page build failed", "path", pageRel, "error", berr)
				if s.Opts.FailOn.FailFast() {
					mu.Lock()
					if fatalErr == nil {
						fatalErr = berr
					}
					mu.Unlock()
				}
			}
			s.Metrics.ObservePageDuration(time.Since(pageStart))
		}(page)
	}
	wg.Wait()

	return fatalErr
}

// buildPage resolves, merges, and writes one page. A cache hit re-records
// the existing output's asset references and skips the rewrite.
func (s *Session) buildPage(pageRel string, report *Report) *sberrors.BuildError {
	outPath := s.outputPath(pageRel)

	if s.Opts.CacheEnabled() && s.Cache.IsUpToDate(pageRel, outPath) {
		s.Metrics.IncCacheHit()
		s.Cache.Retain(pageRel)
		s.recordOutputAssets(pageRel, outPath)
		report.addSkipped()
		s.Logger.Debug("page up to date", "path", pageRel)
		return nil
	}
	s.Metrics.IncCacheMiss()

	raw, err := os.ReadFile(filepath.Join(s.SourceRoot, filepath.FromSlash(pageRel)))
	if err != nil {
		return sberrors.FileSystemError("read", pageRel, err)
	}

	s.Deps.ClearImporter(pageRel)
	res, rerr := s.Resolver.ResolvePage(pageRel, raw)
	if rerr != nil {
		if berr, ok := rerr.(*sberrors.BuildError); ok {
			return berr
		}
		return sberrors.BuildFailed(pageRel, rerr)
	}

	if s.Opts.FailOn.Normalize() == config.FailWarning && len(res.Problems) > 0 {
		// The caller records the returned problem; adding it here too
		// would double-count it.
		for _, problem := range res.Problems[1:] {
			report.addError(problem)
		}
		return res.Problems[0]
	}
	for _, problem := range res.Problems {
		report.addError(problem)
	}

	mergedHead, merr := s.HeadMerger.Merge(res.Heads)
	if merr != nil {
		return sberrors.BuildFailed(pageRel, merr)
	}
	if head := htmldoc.Head(res.Doc); head != nil && mergedHead != "" {
		nodes, perr := htmldoc.ParseSnippet(mergedHead)
		if perr != nil {
			return sberrors.BuildFailed(pageRel, perr)
		}
		htmldoc.AppendChildren(head, nodes)
	}

	s.Assets.RecordReferences(pageRel, res.Doc)

	rendered, renderErr := htmldoc.RenderDocument(res.Doc)
	if renderErr != nil {
		return sberrors.BuildFailed(pageRel, renderErr)
	}
	if s.Opts.Minify {
		rendered = minifyHTML(rendered)
	}
	if werr := writeOutput(outPath, rendered); werr != nil {
		return werr
	}

	if s.Opts.CacheEnabled() {
		if herr := s.Cache.UpdateHash(pageRel); herr != nil {
			s.Logger.Debug("hash update failed", "path", pageRel, "error", herr)
		}
		depList := s.Deps.TransitiveDependencies(pageRel)
		if derr := s.Cache.SetDependencies(pageRel, depList, outPath); derr != nil {
			s.Logger.Debug("cache entry update failed", "path", pageRel, "error", derr)
		}
	}

	report.addProcessed()
	s.Metrics.IncPagesProcessed(1)
	return nil
}

// recordOutputAssets re-registers asset references from an already-built
// output file, so cache hits still count toward the selective copy pass.
func (s *Session) recordOutputAssets(pageRel, outPath string) {
	data, err := os.ReadFile(filepath.Clean(outPath))
	if err != nil {
		return
	}
	doc, err := htmldoc.ParseDocument(data)
	if err != nil {
		return
	}
	s.Assets.RecordReferences(pageRel, doc)
}

// copyPass copies COPY-classified files. Explicit copy patterns and the
// assets directory copy unconditionally; everything else requires a recorded
// reference. Stylesheets are scanned for url() references as they are
// copied, which can make further files eligible, so the pass loops to a
// fixpoint.
func (s *Session) copyPass(copies []string, report *Report) {
	done := sets.New[string]()
	for changed := true; changed; {
		changed = false
		for _, rel := range copies {
			if done.Has(rel) {
				continue
			}
			if !s.shouldCopy(rel) {
				continue
			}
			done.Add(rel)
			changed = true

			src := filepath.Join(s.SourceRoot, filepath.FromSlash(rel))
			dst := filepath.Join(s.OutputRoot, filepath.FromSlash(rel))
			if copyUpToDate(src, dst) {
				if filepath.Ext(rel) == ".css" {
					// The url() references still feed the fixpoint even
					// when the copy itself is skipped.
					if data, err := os.ReadFile(filepath.Clean(src)); err == nil {
						s.Assets.RecordCSSReferences(rel, data)
					}
				}
				report.addSkipped()
				s.Logger.Debug("asset up to date", "path", rel)
				continue
			}
			if filepath.Ext(rel) == ".css" {
				data, err := os.ReadFile(filepath.Clean(src))
				if err != nil {
					report.addError(sberrors.FileSystemError("read", rel, err))
					continue
				}
				s.Assets.RecordCSSReferences(rel, data)
				if werr := writeOutput(dst, data); werr != nil {
					report.addError(werr)
					continue
				}
			} else if cerr := copyFile(src, dst); cerr != nil {
				report.addError(cerr)
				continue
			}
			report.addCopied()
			s.Metrics.IncAssetsCopied(1)
		}
	}

	for _, rel := range copies {
		if !done.Has(rel) {
			s.Logger.Debug("asset not referenced, not copied", "path", rel)
			report.addSkipped()
		}
	}
}

// copyUpToDate reports whether dst already holds src's content, judged by
// size and modification time. Rebuilding an unchanged tree must not rewrite
// assets.
func copyUpToDate(src, dst string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return si.Size() == di.Size() && !si.ModTime().After(di.ModTime())
}

func (s *Session) shouldCopy(rel string) bool {
	if s.Classifier.ExplicitCopy(rel) || s.Classifier.InAssetsDir(rel) {
		return true
	}
	return s.Assets.IsReferenced(rel)
}
