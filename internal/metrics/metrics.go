// Package metrics exposes Prometheus collectors for feature loading, hover
// transitions and selection updates.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SourceLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficmap_source_loads_total",
		Help: "Completed feature source loads by category and result",
	}, []string{"category", "result"})
	SourceFeatures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trafficmap_source_features",
		Help: "Number of features currently loaded per category",
	}, []string{"category"})
	SourceLoadDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafficmap_source_load_duration_ms",
		Help:    "Feature source load duration in milliseconds",
		Buckets: []float64{5, 10, 50, 100, 250, 500, 1000, 5000},
	}, []string{"category"})
	HoverTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficmap_hover_transitions_total",
		Help: "Hover state transitions (enter, exit)",
	}, []string{"transition"})
	HoverNotFoundTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficmap_hover_not_found_total",
		Help: "Hover requests for ids absent from every layer",
	})
	SelectionUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trafficmap_selection_updates_total",
		Help: "Selection store writes (set, clear)",
	}, []string{"kind"})
	TilesRenderedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trafficmap_overlay_tiles_rendered_total",
		Help: "Overlay tiles rasterised",
	})
)

func init() {
	prometheus.MustRegister(SourceLoadsTotal)
	prometheus.MustRegister(SourceFeatures)
	prometheus.MustRegister(SourceLoadDurationMs)
	prometheus.MustRegister(HoverTransitionsTotal)
	prometheus.MustRegister(HoverNotFoundTotal)
	prometheus.MustRegister(SelectionUpdatesTotal)
	prometheus.MustRegister(TilesRenderedTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
