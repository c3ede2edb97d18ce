package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ir"
)

// Responder decides the result for one transmitted event.
type Responder func(ev ir.Event) engine.Result

// Succeed reports success for every event.
func Succeed() Responder {
	return func(ev ir.Event) engine.Result {
		return engine.Success(ev.Seq)
	}
}

// RetryAt reports a retry at the given time for every event.
func RetryAt(at time.Time) Responder {
	return func(ev ir.Event) engine.Result {
		return engine.RetryAt(ev.Seq, at, nil)
	}
}

// RetryAfter reports a retry d after the clock's current time.
func RetryAfter(clock engine.Clock, d time.Duration) Responder {
	return func(ev ir.Event) engine.Result {
		return engine.RetryAt(ev.Seq, clock.Now().Add(d), nil)
	}
}

// Fail reports a permanent failure for every event.
func Fail(err error) Responder {
	return func(ev ir.Event) engine.Result {
		return engine.Failure(ev.Seq, err)
	}
}

// ScriptedTransmitter records batches and answers them with a Responder.
//
// With a nil Responder batches are held until the test calls Report, which
// models a transmitter whose network call has not returned yet.
//
// Implements engine.Transmitter. Thread-safety: safe for concurrent use.
type ScriptedTransmitter struct {
	mu        sync.Mutex
	state     engine.State
	respond   Responder
	batches   []engine.Batch
	reporters map[string]engine.ReportFunc
	starts    int
}

// NewScriptedTransmitter creates a Ready transmitter answering with respond.
func NewScriptedTransmitter(respond Responder) *ScriptedTransmitter {
	return &ScriptedTransmitter{
		state:     engine.StateReady,
		respond:   respond,
		reporters: make(map[string]engine.ReportFunc),
	}
}

// Start marks the transmitter Ready.
func (s *ScriptedTransmitter) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.state = engine.StateReady
	return nil
}

// Dispose marks the transmitter Disposed.
func (s *ScriptedTransmitter) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = engine.StateDisposed
}

// State returns the current state.
func (s *ScriptedTransmitter) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState overrides the state.
func (s *ScriptedTransmitter) SetState(st engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// SetResponder replaces the responder. nil holds later batches.
func (s *ScriptedTransmitter) SetResponder(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = r
}

// Transmit records the batch and reports results synchronously when a
// responder is set.
func (s *ScriptedTransmitter) Transmit(_ context.Context, batch engine.Batch, report engine.ReportFunc) {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	respond := s.respond
	if respond == nil {
		s.reporters[batch.ID] = report
	}
	s.mu.Unlock()

	if respond == nil {
		return
	}
	for _, ev := range batch.Events {
		report(respond(ev))
	}
}

// Report delivers results for a held batch. Returns false for an unknown
// batch id.
func (s *ScriptedTransmitter) Report(batchID string, results ...engine.Result) bool {
	s.mu.Lock()
	report, ok := s.reporters[batchID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	for _, r := range results {
		report(r)
	}
	return true
}

// Batches returns every batch received so far.
func (s *ScriptedTransmitter) Batches() []engine.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Events returns every transmitted event in transmission order.
func (s *ScriptedTransmitter) Events() []ir.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ir.Event
	for _, b := range s.batches {
		out = append(out, b.Events...)
	}
	return out
}

// Starts returns how many times Start was called.
func (s *ScriptedTransmitter) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}
