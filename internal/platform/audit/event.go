// Package audit records who changed what in the booking engine. Events are
// built from an explicit Actor carried on the context and handed to one or
// more sinks after the owning transaction commits.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ActionBookingCreated   = "booking.created"
	ActionBookingUpdated   = "booking.updated"
	ActionBookingCancelled = "booking.cancelled"
	ActionBookingCompleted = "booking.completed"
	ActionBookingNoShow    = "booking.no_show"
	ActionOverAnnual       = "booking.over_annual"
	ActionCoverageFallback = "booking.prescription_exhausted"
	ActionInvoiceCreated   = "invoice.created"
	ActionInvoicePaid      = "invoice.paid"
	ActionTariffsImported  = "tariff.imported"
)

type actorKey struct{}

// Actor identifies the caller on whose behalf a change is made.
type Actor struct {
	ID        string `json:"id"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor attached by WithActor. Without one the
// zero Actor is returned with ok == false.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

type Event struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Actor      Actor           `json:"actor"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent snapshots before/after (either may be nil) and stamps the actor
// from ctx.
func NewEvent(ctx context.Context, action, entityType string, entityID uuid.UUID, before, after interface{}) (Event, error) {
	actor, _ := ActorFromContext(ctx)
	ev := Event{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
	var err error
	if ev.Before, err = snapshot(before); err != nil {
		return Event{}, fmt.Errorf("audit %s: before snapshot: %w", action, err)
	}
	if ev.After, err = snapshot(after); err != nil {
		return Event{}, fmt.Errorf("audit %s: after snapshot: %w", action, err)
	}
	return ev, nil
}

func snapshot(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
