package testutil

import (
	"context"
	"sync"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/store"
)

// SpyStore wraps a store.Store, counting writes and injecting failures.
//
// Thread-safety: safe for concurrent use.
type SpyStore struct {
	store.Store

	mu              sync.Mutex
	inserts         int
	payloadDeletes  int
	failUpdate      func(ir.Event) error
	failInsert      error
	failPayloadDels error
}

// NewSpyStore wraps s.
func NewSpyStore(s store.Store) *SpyStore {
	return &SpyStore{Store: s}
}

// FailUpdates makes UpdateEvent return fn's error whenever it is non-nil.
func (s *SpyStore) FailUpdates(fn func(ir.Event) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdate = fn
}

// FailInserts makes InsertEvent fail with err. nil clears it.
func (s *SpyStore) FailInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInsert = err
}

// FailPayloadDeletes makes DeletePayloads fail with err. nil clears it.
func (s *SpyStore) FailPayloadDeletes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPayloadDels = err
}

// Inserts returns how many InsertEvent calls reached the store.
func (s *SpyStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// PayloadDeletes returns how many DeletePayloads calls reached the store.
func (s *SpyStore) PayloadDeletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloadDeletes
}

func (s *SpyStore) InsertEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	s.mu.Lock()
	err := s.failInsert
	if err == nil {
		s.inserts++
	}
	s.mu.Unlock()

	if err != nil {
		ev.Seq = 0
		return ev, err
	}
	return s.Store.InsertEvent(ctx, ev)
}

func (s *SpyStore) UpdateEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	s.mu.Lock()
	fail := s.failUpdate
	s.mu.Unlock()

	if fail != nil {
		if err := fail(ev); err != nil {
			return ev, err
		}
	}
	return s.Store.UpdateEvent(ctx, ev)
}

func (s *SpyStore) DeletePayloads(ctx context.Context, ps []ir.DataPayload) error {
	s.mu.Lock()
	err := s.failPayloadDels
	if err == nil {
		s.payloadDeletes++
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.Store.DeletePayloads(ctx, ps)
}
