package build

import (
	"fmt"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuild/internal/assets"
	"git.home.luguber.info/inful/sitebuild/internal/cache"
	"git.home.luguber.info/inful/sitebuild/internal/deps"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

// Report is the outcome of one build run. The trackers and cache are carried
// so a following incremental build can re-enter with warm state.
type Report struct {
	BuildID   string
	Processed int
	Copied    int
	Skipped   int
	Errors    []*sberrors.BuildError
	Duration  time.Duration

	Deps   *deps.Tracker
	Assets *assets.Tracker
	Cache  *cache.BuildCache

	mu sync.Mutex
}

// addError appends a structured error; serialized for concurrent page work.
func (r *Report) addError(err *sberrors.BuildError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

func (r *Report) addProcessed() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *Report) addSkipped() {
	r.mu.Lock()
	r.Skipped++
	r.mu.Unlock()
}

func (r *Report) addCopied() {
	r.mu.Lock()
	r.Copied++
	r.mu.Unlock()
}

// HasErrors reports whether any error with severity error or fatal was
// recorded. Warnings alone do not fail a default-mode build.
func (r *Report) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Errors {
		if e.Severity == sberrors.SeverityError || e.Severity == sberrors.SeverityFatal {
			return true
		}
	}
	return false
}

// Err returns the aggregate build failure, or nil when the run is clean.
func (r *Report) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return sberrors.New(sberrors.CategoryBuild, sberrors.SeverityError,
		fmt.Sprintf("build completed with %d error(s)", len(r.Errors))).
		WithContext("build_id", r.BuildID).
		WithSuggestion("see the error list above; fix the first failure and rebuild")
}
