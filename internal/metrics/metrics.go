package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ComputationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heatseeker_computations_total", Help: "Exposure computations by ticker and chain source"},
		[]string{"ticker", "source"},
	)
	ComputationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heatseeker_computation_errors_total", Help: "Failed exposure computations"},
		[]string{"ticker", "reason"},
	)
	SubstitutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heatseeker_substitutions_total", Help: "Fallback values applied to chain rows"},
		[]string{"field"},
	)
	SourceFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "heatseeker_source_fallbacks_total", Help: "Market data failures that fell back to another source"},
		[]string{"stage", "kind"},
	)
)

func init() {
	prometheus.MustRegister(ComputationsTotal, ComputationErrorsTotal, SubstitutionsTotal, SourceFallbacksTotal)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
