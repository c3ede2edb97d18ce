// Package transmit provides a Transmitter that writes batches as JSON lines.
package transmit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ir"
)

// DefaultRetryDelay is how long a batch waits after a failed write.
const DefaultRetryDelay = 30 * time.Second

// Line is one written batch.
type Line struct {
	Batch  string     `json:"batch"`
	Events []ir.Event `json:"events"`
}

// WriterTransmitter writes each batch as one JSON line to an io.Writer.
//
// A successful write reports every event as sent. A failed write reports
// every event for retry after the retry delay. The transmitter is
// Connecting until Start and Disposed after Dispose.
//
// Thread-safety: safe for concurrent use.
type WriterTransmitter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	state  engine.State

	clock      engine.Clock
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a WriterTransmitter.
type Option func(*WriterTransmitter)

// WithClock sets the clock used to compute retry times.
func WithClock(c engine.Clock) Option {
	return func(t *WriterTransmitter) {
		t.clock = c
	}
}

// WithRetryDelay sets the delay before a failed batch is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(t *WriterTransmitter) {
		t.retryDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *WriterTransmitter) {
		t.logger = logger
	}
}

// NewWriter creates a transmitter writing to w. The caller owns w.
func NewWriter(w io.Writer, opts ...Option) *WriterTransmitter {
	t := &WriterTransmitter{
		w:          w,
		state:      engine.StateConnecting,
		clock:      engine.SystemClock{},
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpenFile creates a transmitter appending to path. Dispose closes the file.
func OpenFile(path string, opts ...Option) (*WriterTransmitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transmit file: %w", err)
	}
	t := NewWriter(f, opts...)
	t.closer = f
	return t, nil
}

// Start makes the transmitter Ready. Starting a disposed transmitter fails.
func (t *WriterTransmitter) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == engine.StateDisposed {
		return fmt.Errorf("transmitter disposed")
	}
	t.state = engine.StateReady
	return nil
}

// Dispose stops the transmitter and closes an owned file.
func (t *WriterTransmitter) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == engine.StateDisposed {
		return
	}
	t.state = engine.StateDisposed
	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			t.logger.Warn("transmit file not closed", "error", err)
		}
	}
}

// State returns the readiness state.
func (t *WriterTransmitter) State() engine.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transmit writes the batch and reports the outcome for each event.
func (t *WriterTransmitter) Transmit(_ context.Context, batch engine.Batch, report engine.ReportFunc) {
	err := t.write(batch)
	if err != nil {
		t.logger.Warn("batch not written", "batch", batch.ID, "error", err)
		at := t.clock.Now().Add(t.retryDelay)
		for _, ev := range batch.Events {
			report(engine.RetryAt(ev.Seq, at, err))
		}
		return
	}
	for _, ev := range batch.Events {
		report(engine.Success(ev.Seq))
	}
}

func (t *WriterTransmitter) write(batch engine.Batch) error {
	data, err := json.Marshal(Line{Batch: batch.ID, Events: batch.Events})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != engine.StateReady {
		return fmt.Errorf("transmitter %s", t.state)
	}
	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

var _ engine.Transmitter = (*WriterTransmitter)(nil)
