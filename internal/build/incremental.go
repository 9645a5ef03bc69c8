package build

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitebuild/internal/classify"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// Rebuild re-enters the pipeline for the subset of pages affected by the
// changed paths. Rules:
//
//   - a changed page rebuilds only itself;
//   - a changed fragment rebuilds every page transitively depending on it;
//   - a newly created asset rebuilds every page once, so pattern-based
//     references can pick it up (a new file has no prior cache entry to
//     compare against);
//   - a deleted file is dropped from the cache tables and nothing else.
//
// The session's trackers must be warm from a prior Run.
func (b *Builder) Rebuild(ctx context.Context, changed []string) (*Report, error) {
	s := b.s
	start := time.Now()
	report := &Report{BuildID: s.ID, Deps: s.Deps, Assets: s.Assets, Cache: s.Cache}

	pages := sets.New[string]()
	var copies []string

	for _, rel := range changed {
		abs := filepath.Join(s.SourceRoot, filepath.FromSlash(rel))
		if s.inManagedDir(abs) {
			// Our own output (or cache) coming back as a change event.
			// Treating it as a source file would re-emit it under the
			// output directory and feed the watcher forever.
			s.Logger.Debug("ignoring change in build-managed directory", "path", rel)
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			s.Logger.Debug("changed path deleted, dropping from cache", "path", rel)
			s.Cache.Remove(rel)
			continue
		}

		switch {
		case s.Deps.IsPage(rel):
			pages.Add(rel)
		case len(s.Deps.AffectedPages(rel)) > 0:
			for _, page := range s.Deps.AffectedPages(rel) {
				pages.Add(page)
			}
		default:
			cls := s.Classifier.Classify(rel)
			switch cls.Action {
			case classify.ActionEmit:
				// A brand-new page.
				s.Deps.RegisterPage(rel)
				pages.Add(rel)
			case classify.ActionCopy, classify.ActionSkip:
				copies = append(copies, rel)
				if !s.Cache.Known(rel) {
					// New asset: every page gets one pass to notice it.
					for _, page := range s.Deps.Pages() {
						pages.Add(page)
					}
				}
			}
		}
	}

	if err := s.resolvePhase(ctx, sets.SortedValues(pages), report); err != nil {
		s.finish(report, start)
		return report, err
	}
	s.copyPass(copies, report)

	if s.Opts.CacheEnabled() {
		if serr := s.Cache.Save(ctx); serr != nil {
			report.addError(sberrors.CacheError("save", serr))
		}
	}

	s.finish(report, start)
	return report, report.Err()
}
