package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)

	// SegmentsAssembled counts per-segment timeline builds by outcome.
	SegmentsAssembled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "segments_assembled_total", Help: "Timeline assemblies by outcome."},
		[]string{"outcome"},
	)

	// AssemblyDuration records how long one segment build takes.
	AssemblyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segment_assembly_duration_seconds",
			Help:    "Duration of one segment timeline assembly.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DistanceLookups counts distance resolutions by source (hot, store, computed).
	DistanceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "distance_lookups_total", Help: "Distance resolutions by source."},
		[]string{"source"},
	)

	// Previews counts preview simulations by operation and outcome.
	Previews = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "previews_total", Help: "Preview simulations by operation and outcome."},
		[]string{"op", "outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(SegmentsAssembled)
		Registry.MustRegister(AssemblyDuration)
		Registry.MustRegister(DistanceLookups)
		Registry.MustRegister(Previews)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
