// Package metrics defines the observability hooks the build pipeline emits.
package metrics

import "time"

// OutcomeLabel enumerates build outcome categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess OutcomeLabel = "success"
	OutcomeWarning OutcomeLabel = "warning"
	OutcomeFailed  OutcomeLabel = "failed"
)

// Recorder defines observability hooks for build and page metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder is the default when metrics are not configured.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	ObservePageDuration(d time.Duration)
	IncBuildOutcome(outcome OutcomeLabel)
	IncPagesProcessed(n int)
	IncAssetsCopied(n int)
	IncCacheHit()
	IncCacheMiss()
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) ObservePageDuration(time.Duration)  {}
func (NoopRecorder) IncBuildOutcome(OutcomeLabel)       {}
func (NoopRecorder) IncPagesProcessed(int)              {}
func (NoopRecorder) IncAssetsCopied(int)                {}
func (NoopRecorder) IncCacheHit()                       {}
func (NoopRecorder) IncCacheMiss()                      {}
