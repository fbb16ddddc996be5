package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/platform/db"
)

type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, ev Event) error {
	s.logger.Info().
		Str("event_id", ev.ID.String()).
		Str("action", ev.Action).
		Str("entity_type", ev.EntityType).
		Str("entity_id", ev.EntityID.String()).
		Str("actor_id", ev.Actor.ID).
		Str("reason", ev.Actor.Reason).
		Str("request_id", ev.Actor.RequestID).
		Time("occurred_at", ev.OccurredAt).
		Msg("audit")
	return nil
}

// PGSink appends events to the audit_event table.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Write(ctx context.Context, ev Event) error {
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO audit_event (id, action, entity_type, entity_id,
			actor_id, reason, request_id, before_state, after_state, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		ev.ID, ev.Action, ev.EntityType, ev.EntityID,
		ev.Actor.ID, ev.Actor.Reason, ev.Actor.RequestID,
		nullJSON(ev.Before), nullJSON(ev.After), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit_event: %w", err)
	}
	return nil
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
