package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	buildDuration prom.Histogram
	pageDuration  prom.Histogram
	buildOutcome  *prom.CounterVec
	pages         prom.Counter
	assets        prom.Counter
	cacheHits     prom.Counter
	cacheMisses   prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuild",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.pageDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitebuild",
			Name:      "page_duration_seconds",
			Help:      "Duration of individual page resolutions",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitebuild",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.pages = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitebuild",
			Name:      "pages_processed_total",
			Help:      "Pages resolved and written",
		})
		pr.assets = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitebuild",
			Name:      "assets_copied_total",
			Help:      "Assets copied to the output tree",
		})
		pr.cacheHits = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitebuild",
			Name:      "cache_hits_total",
			Help:      "Pages skipped because the build cache marked them up to date",
		})
		pr.cacheMisses = prom.NewCounter(prom.CounterOpts{
			Namespace: "sitebuild",
			Name:      "cache_misses_total",
			Help:      "Pages rebuilt because the cache entry was stale or absent",
		})
		reg.MustRegister(pr.buildDuration, pr.pageDuration, pr.buildOutcome, pr.pages, pr.assets, pr.cacheHits, pr.cacheMisses)
	})
	return pr
}

func (pr *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	pr.buildDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObservePageDuration(d time.Duration) {
	pr.pageDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncBuildOutcome(outcome OutcomeLabel) {
	pr.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (pr *PrometheusRecorder) IncPagesProcessed(n int) { pr.pages.Add(float64(n)) }
func (pr *PrometheusRecorder) IncAssetsCopied(n int)   { pr.assets.Add(float64(n)) }
func (pr *PrometheusRecorder) IncCacheHit()            { pr.cacheHits.Inc() }
func (pr *PrometheusRecorder) IncCacheMiss()           { pr.cacheMisses.Inc() }

// HTTPHandler returns an http.Handler serving Prometheus metrics for the
// provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
