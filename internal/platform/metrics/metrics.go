// Package metrics holds the Prometheus collectors for the booking engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	BookingsPriced     *prometheus.CounterVec
	BookingsRejected   *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	StatusTransitions  *prometheus.CounterVec
	TariffCacheHits    prometheus.Counter
	TariffCacheMisses  prometheus.Counter
	TariffRowsImported prometheus.Counter
	InvoicesCreated    prometheus.Counter
	AuditDelivered     *prometheus.CounterVec
	AuditFailures      *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BookingsPriced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carehub_bookings_priced_total",
			Help: "Bookings accepted by the pricing pipeline",
		}, []string{"operation", "coverage"}),
		BookingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carehub_bookings_rejected_total",
			Help: "Bookings rejected by the pricing pipeline",
		}, []string{"operation", "reason"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carehub_booking_pipeline_duration_seconds",
			Help:    "Duration of the validate/coverage/tariff/pricing pipeline",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carehub_booking_status_transitions_total",
			Help: "Booking status transitions",
		}, []string{"status"}),
		TariffCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carehub_tariff_cache_hits_total",
			Help: "Tariff row lookups served from cache",
		}),
		TariffCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carehub_tariff_cache_misses_total",
			Help: "Tariff row lookups that went to the database",
		}),
		TariffRowsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carehub_tariff_rows_imported_total",
			Help: "Tariff rows upserted by the importer",
		}),
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carehub_invoices_created_total",
			Help: "Invoices persisted",
		}),
		AuditDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carehub_audit_delivered_total",
			Help: "Audit events delivered, by sink",
		}, []string{"sink"}),
		AuditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carehub_audit_failures_total",
			Help: "Audit events a sink failed to accept",
		}, []string{"sink"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carehub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.BookingsPriced,
		m.BookingsRejected,
		m.PipelineDuration,
		m.StatusTransitions,
		m.TariffCacheHits,
		m.TariffCacheMisses,
		m.TariffRowsImported,
		m.InvoicesCreated,
		m.AuditDelivered,
		m.AuditFailures,
		m.BreakerState,
	)
	return m
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
