package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations records the outcome and duration of thing interactions. A nil
// *Operations is valid and records nothing, so callers do not need to guard
// every observation site.
type Operations struct {
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewOperations(reg prometheus.Registerer) *Operations {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Operations{
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wotbind_operations_total",
			Help: "Count of thing interactions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wotbind_operation_duration_seconds",
			Help:    "Duration of thing interactions by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(o.completed, o.duration)
	return o
}

func (o *Operations) Observe(operation string, ok bool, d time.Duration) {
	if o == nil {
		return
	}

	outcome := "success"
	if !ok {
		outcome = "failure"
	}

	o.completed.WithLabelValues(operation, outcome).Inc()
	o.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
