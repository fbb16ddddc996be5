package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/platform/metrics"
)

// Dispatcher fans events out to every sink. A sink failure never stops the
// others; each one is logged at error level, counted in
// carehub_audit_failures_total and returned to the caller joined.
type Dispatcher struct {
	sinks   []Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(logger zerolog.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger, metrics: m}
}

func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) error {
	var errs []error
	for _, ev := range events {
		for _, s := range d.sinks {
			if err := s.Write(ctx, ev); err != nil {
				d.logger.Error().Err(err).
					Str("sink", s.Name()).
					Str("action", ev.Action).
					Str("entity_id", ev.EntityID.String()).
					Str("request_id", ev.Actor.RequestID).
					Msg("audit delivery failed")
				if d.metrics != nil {
					d.metrics.AuditFailures.WithLabelValues(s.Name()).Inc()
				}
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				continue
			}
			if d.metrics != nil {
				d.metrics.AuditDelivered.WithLabelValues(s.Name()).Inc()
			}
		}
	}
	return errors.Join(errs...)
}
