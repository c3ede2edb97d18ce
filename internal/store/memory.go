package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/serial"
)

// MemoryStore is a Store held in process memory. Like SQLiteStore it runs
// every operation on one serial queue. Ids start at 1 and are never reused.
type MemoryStore struct {
	queue *serial.Queue
	now   func() time.Time

	events   map[int64]ir.Event
	payloads map[int64]ir.DataPayload
	nextSeq  int64
	nextID   int64

	closeOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &MemoryStore{
		queue:    serial.Start(serial.New("memstore", serial.WithLogger(o.logger))),
		now:      o.now,
		events:   make(map[int64]ir.Event),
		payloads: make(map[int64]ir.DataPayload),
	}
}

// Close stops the store's queue. Safe to call more than once.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		m.queue.Close()
		<-m.queue.Done()
	})
	return nil
}

func (m *MemoryStore) do(ctx context.Context, op string, fn func() error) error {
	err := m.queue.Call(ctx, func(context.Context) error { return fn() })
	if errors.Is(err, serial.ErrClosed) {
		return execError(op, err)
	}
	return err
}

// cloneEvent copies the property maps so callers never alias stored state.
func cloneEvent(ev ir.Event) ir.Event {
	ev.Properties = ev.Properties.Clone()
	ev.Context = ev.Context.Clone()
	return ev
}

func clonePayload(p ir.DataPayload) ir.DataPayload {
	p.Data = slices.Clone(p.Data)
	p.UserInfo = p.UserInfo.Clone()
	p.Trigger.Event.Filters = slices.Clone(p.Trigger.Event.Filters)
	return p
}

// InsertEvent stores ev under the next sequence id.
func (m *MemoryStore) InsertEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now().UTC()
	}
	ev.UpdatedAt = ev.CreatedAt
	ev.Seq = 0

	err := m.do(ctx, "insert event", func() error {
		m.nextSeq++
		ev.Seq = m.nextSeq
		m.events[ev.Seq] = cloneEvent(ev)
		return nil
	})
	if err != nil {
		ev.Seq = 0
	}
	return ev, err
}

// SelectSendable mirrors the SQL predicate of SQLiteStore.
func (m *MemoryStore) SelectSendable(ctx context.Context, maxNextTryAt time.Time, q SendableQuery) ([]ir.Event, error) {
	maxMicros := encodeTime(maxNextTryAt)

	var out []ir.Event
	err := m.do(ctx, "select sendable events", func() error {
		out = []ir.Event{}
		for _, seq := range sortedKeys(m.events) {
			ev := m.events[seq]
			if !ev.Status.Sendable() || encodeTime(ev.NextRetryAt) > maxMicros {
				continue
			}
			if q.Priority != nil && ev.Priority != *q.Priority {
				continue
			}
			out = append(out, cloneEvent(ev))
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// UpdateEvent overwrites the stored event keyed by ev.Seq.
func (m *MemoryStore) UpdateEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	const op = "update event"

	if !ev.Persisted() {
		return ev, execError(op, fmt.Errorf("event not persisted"))
	}
	ev.UpdatedAt = m.now().UTC()

	err := m.do(ctx, op, func() error {
		if _, ok := m.events[ev.Seq]; !ok {
			return execError(op, ErrNotFound)
		}
		m.events[ev.Seq] = cloneEvent(ev)
		return nil
	})
	return ev, err
}

func (m *MemoryStore) DeleteEvent(ctx context.Context, ev ir.Event) error {
	return m.DeleteEvents(ctx, []ir.Event{ev})
}

func (m *MemoryStore) DeleteEvents(ctx context.Context, evs []ir.Event) error {
	return m.do(ctx, "delete events", func() error {
		for _, ev := range evs {
			delete(m.events, ev.Seq)
		}
		return nil
	})
}

func (m *MemoryStore) ListEvents(ctx context.Context) ([]ir.Event, error) {
	var out []ir.Event
	err := m.do(ctx, "list events", func() error {
		out = make([]ir.Event, 0, len(m.events))
		for _, seq := range sortedKeys(m.events) {
			out = append(out, cloneEvent(m.events[seq]))
		}
		return nil
	})
	return out, err
}

// InsertPayload stores p under the next entry id.
func (m *MemoryStore) InsertPayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	p.ID = 0

	err := m.do(ctx, "insert payload", func() error {
		m.nextID++
		p.ID = m.nextID
		m.payloads[p.ID] = clonePayload(p)
		return nil
	})
	if err != nil {
		p.ID = 0
	}
	return p, err
}

func (m *MemoryStore) SelectByTriggerEventName(ctx context.Context, name string) ([]ir.DataPayload, error) {
	var out []ir.DataPayload
	err := m.do(ctx, "select payloads by event name", func() error {
		out = []ir.DataPayload{}
		for _, id := range sortedKeys(m.payloads) {
			p := m.payloads[id]
			if et, ok := p.Trigger.EventTrigger(); ok && et.Name == name {
				out = append(out, clonePayload(p))
			}
		}
		return nil
	})
	return out, err
}

func (m *MemoryStore) UpdatePayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error) {
	const op = "update payload"

	if !p.Persisted() {
		return p, execError(op, fmt.Errorf("payload not persisted"))
	}
	p.UpdatedAt = m.now().UTC()

	err := m.do(ctx, op, func() error {
		if _, ok := m.payloads[p.ID]; !ok {
			return execError(op, ErrNotFound)
		}
		m.payloads[p.ID] = clonePayload(p)
		return nil
	})
	return p, err
}

func (m *MemoryStore) DeletePayload(ctx context.Context, p ir.DataPayload) error {
	return m.DeletePayloads(ctx, []ir.DataPayload{p})
}

func (m *MemoryStore) DeletePayloads(ctx context.Context, ps []ir.DataPayload) error {
	return m.do(ctx, "delete payloads", func() error {
		for _, p := range ps {
			delete(m.payloads, p.ID)
		}
		return nil
	})
}

func (m *MemoryStore) ListPayloads(ctx context.Context) ([]ir.DataPayload, error) {
	var out []ir.DataPayload
	err := m.do(ctx, "list payloads", func() error {
		out = make([]ir.DataPayload, 0, len(m.payloads))
		for _, id := range sortedKeys(m.payloads) {
			out = append(out, clonePayload(m.payloads[id]))
		}
		return nil
	})
	return out, err
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
