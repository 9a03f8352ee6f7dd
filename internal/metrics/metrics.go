package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gfimx"

// Recorder implements scan.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	stageItems   *prometheus.CounterVec
	filesHashed  prometheus.Counter
	bytesHashed  prometheus.Counter
	changes      *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	lastScan     *prometheus.GaugeVec
}

// NewRecorder registers every collector on a fresh registry. Go runtime and
// process collectors are included when withRuntime is set.
func NewRecorder(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// Labels: stage (traverser, reader, hasher, sink), outcome (processed, failed, panicked)
		stageItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Items handled by pipeline stage workers",
		}, []string{"stage", "outcome"}),

		filesHashed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_hashed_total",
			Help:      "Files whose digest was computed",
		}),

		bytesHashed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_hashed_total",
			Help:      "Bytes folded into file digests",
		}),

		// Labels: kind (added, modified)
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Changes detected against the baseline",
		}, []string{"kind"}),

		// Labels: target (watch or schedule name)
		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed scans",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"target"}),

		lastScan: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last scan of a target finished",
		}, []string{"target"}),
	}
}

// ObserveStage counts one handler invocation.
func (r *Recorder) ObserveStage(stage, outcome string) {
	r.stageItems.WithLabelValues(stage, outcome).Inc()
}

// ObserveFile counts one hashed file of the given size.
func (r *Recorder) ObserveFile(bytes int64) {
	r.filesHashed.Inc()
	r.bytesHashed.Add(float64(bytes))
}

// ObserveChange counts one detected change.
func (r *Recorder) ObserveChange(kind string) {
	r.changes.WithLabelValues(kind).Inc()
}

// ObserveScan records a finished scan.
func (r *Recorder) ObserveScan(target string, elapsed time.Duration) {
	r.scanDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	r.lastScan.WithLabelValues(target).SetToCurrentTime()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
