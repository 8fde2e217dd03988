package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index pipeline Prometheus metrics.
var (
	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tourdex",
			Name:      "index_build_duration_seconds",
			Help:      "Full index rebuild duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourdex",
			Name:      "index_builds_total",
			Help:      "Total number of index rebuilds",
		},
		[]string{"status"}, // "ok" / "error"
	)

	IndexEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tourdex",
			Name:      "index_entries",
			Help:      "Entries in the active index by kind",
		},
		[]string{"kind"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourdex",
			Name:      "queries_total",
			Help:      "Total number of search queries by query type",
		},
		[]string{"type"}, // "wildcard" / "exact" / "fuzzy" / "rejected"
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourdex",
			Name:      "dispatches_total",
			Help:      "Total number of entry dispatches by entry kind",
		},
		[]string{"kind"},
	)

	DatasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tourdex",
			Name:      "dataset_loads_total",
			Help:      "External dataset load attempts",
		},
		[]string{"result"}, // "ok" / "error" / "disabled"
	)
)

var pipelineRegistered bool

// RegisterPipelineMetrics registers the pipeline metrics. Must be called
// once from main.
func RegisterPipelineMetrics() {
	if pipelineRegistered {
		return
	}
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(BuildsTotal)
	prometheus.MustRegister(IndexEntries)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(DispatchesTotal)
	prometheus.MustRegister(DatasetLoadsTotal)
	pipelineRegistered = true
}
