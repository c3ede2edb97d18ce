package store

import (
	"context"
	"time"

	"github.com/roach88/beacon/internal/ir"
)

// EventStore persists events for the controller.
//
// Insert returns the event with its store-assigned Seq. On failure the
// returned event has Seq 0 and the error is a *StoreError; callers treat
// Seq 0 as "not persisted".
type EventStore interface {
	InsertEvent(ctx context.Context, ev ir.Event) (ir.Event, error)

	// SelectSendable returns events with status Queued or Retry whose
	// NextRetryAt is at or before maxNextTryAt, oldest first.
	SelectSendable(ctx context.Context, maxNextTryAt time.Time, q SendableQuery) ([]ir.Event, error)

	// UpdateEvent overwrites the row keyed by ev.Seq and refreshes UpdatedAt.
	UpdateEvent(ctx context.Context, ev ir.Event) (ir.Event, error)

	DeleteEvent(ctx context.Context, ev ir.Event) error
	DeleteEvents(ctx context.Context, evs []ir.Event) error

	// ListEvents returns every stored event, oldest first.
	ListEvents(ctx context.Context) ([]ir.Event, error)
}

// SendableQuery narrows SelectSendable.
type SendableQuery struct {
	Priority *ir.Priority // nil selects every priority
	Limit    int          // 0 means unlimited
}

// DataStore persists data payloads for the trigger pipeline.
type DataStore interface {
	InsertPayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error)

	// SelectByTriggerEventName returns payloads with an event trigger whose
	// name equals name exactly (case-sensitive), oldest first.
	SelectByTriggerEventName(ctx context.Context, name string) ([]ir.DataPayload, error)

	// UpdatePayload overwrites the row keyed by p.ID and refreshes UpdatedAt.
	UpdatePayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error)

	DeletePayload(ctx context.Context, p ir.DataPayload) error
	DeletePayloads(ctx context.Context, ps []ir.DataPayload) error

	// ListPayloads returns every stored payload, oldest first.
	ListPayloads(ctx context.Context) ([]ir.DataPayload, error)
}

// Store is the full persistence port.
type Store interface {
	EventStore
	DataStore
	Close() error
}

// Option configures a store backend.
type Option func(*options)
