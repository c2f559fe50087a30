// Package metrics exposes Prometheus instrumentation for import runs.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ImportRuns counts import invocations by source and mode (dry_run/commit).
	ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moneta",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Import runs by source and mode.",
	}, []string{"source", "mode"})

	// ImportRows counts row outcomes by source and status.
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moneta",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Import row results by source and status.",
	}, []string{"source", "status"})

	// ImportDuration observes end-to-end import run latency.
	ImportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moneta",
		Subsystem: "import",
		Name:      "run_duration_seconds",
		Help:      "Import run duration by source.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
)

// ObserveRun records the counters for one finished run.
func ObserveRun(source string, dryRun bool, started time.Time) {
	mode := "commit"
	if dryRun {
		mode = "dry_run"
	}
	ImportRuns.WithLabelValues(source, mode).Inc()
	ImportDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// Serve starts the metrics endpoint on its own port. Blocks until the
// listener fails.
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
