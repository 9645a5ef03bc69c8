package build

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuild/internal/assets"
	"git.home.luguber.info/inful/sitebuild/internal/cache"
	"git.home.luguber.info/inful/sitebuild/internal/classify"
	"git.home.luguber.info/inful/sitebuild/internal/config"
	"git.home.luguber.info/inful/sitebuild/internal/deps"
	"git.home.luguber.info/inful/sitebuild/internal/headmerge"
	"git.home.luguber.info/inful/sitebuild/internal/markdown"
	"git.home.luguber.info/inful/sitebuild/internal/metrics"
	"git.home.luguber.info/inful/sitebuild/internal/resolver"
	"git.home.luguber.info/inful/sitebuild/internal/scan"
)

// Session is the explicit build-session context threaded through every
// component: configuration, trackers, cache, and logger live here rather
// than in package-level state, so concurrent builds in one process stay
// independent.
type Session struct {
	ID         string
	Opts       *config.Options
	SourceRoot string
	OutputRoot string
	CacheDir   string

	Scanner    *scan.Scanner
	Classifier *classify.Classifier
	Resolver   *resolver.Resolver
	HeadMerger *headmerge.Merger
	Deps       *deps.Tracker
	Assets     *assets.Tracker
	Cache      *cache.BuildCache
	Markdown   *markdown.Renderer

	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// NewSession wires a Session's component graph once, in dependency order.
// store may be nil (caching disabled or store unavailable); recorder may be
// nil for no metrics.
func NewSession(opts *config.Options, store cache.Store, recorder metrics.Recorder, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	sourceRoot, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, err
	}
	outputRoot, err := filepath.Abs(opts.Output)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		Opts:       opts,
		SourceRoot: sourceRoot,
		OutputRoot: outputRoot,
		Metrics:    recorder,
	}
	s.Logger = logger.With("build_id", s.ID)

	cacheDir := opts.CacheDir
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(sourceRoot, cacheDir)
	}
	s.CacheDir = cacheDir

	s.Scanner = scan.New(sourceRoot, outputRoot, cacheDir)
	s.Classifier = classify.New(opts)
	s.Deps = deps.NewTracker()
	s.Assets = assets.NewTracker()
	s.Markdown = markdown.NewRenderer()
	s.HeadMerger = headmerge.New(s.Logger)
	s.Resolver = resolver.New(sourceRoot, opts.IncludesDir, opts.MaxImportDepth,
		opts.FailOn.FailFast(), s.Markdown, s.Deps, s.Logger)
	s.Cache = cache.New(store, sourceRoot, s.Logger)
	return s, nil
}

// inManagedDir reports whether abs lives under the output or cache
// directory. Both can nest inside the source tree with the default layout,
// and their contents are build products, never inputs.
func (s *Session) inManagedDir(abs string) bool {
	for _, dir := range []string{s.OutputRoot, s.CacheDir} {
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(dir, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
