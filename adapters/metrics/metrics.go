// Package metrics exposes quota telemetry as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/quotamon/ports"
)

// Collector holds all Prometheus metrics and doubles as a metric sink:
// datums published through it are translated into the families below.
type Collector struct {
	// Call metrics
	CallsTotal *prometheus.CounterVec
	CallStatus *prometheus.CounterVec

	// Quota metrics
	QuotaUsage   *prometheus.GaugeVec
	UsagePercent *prometheus.GaugeVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Datums whose name maps to no family above
	DroppedDatums prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotamon",
				Name:      "api_calls_total",
				Help:      "Total number of metered API calls recorded",
			},
			[]string{"resource", "operation"},
		),
		CallStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotamon",
				Name:      "api_call_status_total",
				Help:      "Metered API calls by outcome status",
			},
			[]string{"resource", "operation", "status"},
		),
		QuotaUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quotamon",
				Name:      "quota_usage",
				Help:      "Current period usage count per resource",
			},
			[]string{"resource", "period"},
		),
		UsagePercent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quotamon",
				Name:      "quota_usage_percent",
				Help:      "Current period usage as a percentage of the limit",
			},
			[]string{"resource", "period"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotamon",
				Name:      "api_errors_total",
				Help:      "Metered API call failures by error type",
			},
			[]string{"resource", "error_type"},
		),
		DroppedDatums: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quotamon",
				Name:      "dropped_datums_total",
				Help:      "Datums with no matching metric family",
			},
		),
	}
}

// Publish translates a datum into its Prometheus family. Unknown names
// are counted and dropped rather than failing the caller.
func (c *Collector) Publish(_ context.Context, d ports.Datum) error {
	dims := d.Dimensions
	switch d.Name {
	case "APICallCount":
		c.CallsTotal.WithLabelValues(dims["Resource"], dims["Operation"]).Add(d.Value)
	case "APICallStatus":
		c.CallStatus.WithLabelValues(dims["Resource"], dims["Operation"], dims["Status"]).Add(d.Value)
	case "QuotaUsage":
		c.QuotaUsage.WithLabelValues(dims["Resource"], dims["Period"]).Set(d.Value)
	case "QuotaUsagePercentage":
		c.UsagePercent.WithLabelValues(dims["Resource"], dims["Period"]).Set(d.Value)
	case "APIError":
		c.ErrorsTotal.WithLabelValues(dims["Resource"], dims["ErrorType"]).Add(d.Value)
	default:
		c.DroppedDatums.Inc()
	}
	return nil
}

var _ ports.MetricSink = (*Collector)(nil)
