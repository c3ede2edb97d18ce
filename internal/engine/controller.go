package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/serial"
	"github.com/roach88/beacon/internal/store"
)

// Observer is told about every persisted remote event. It runs on the
// controller's queue and must not block.
type Observer func(ctx context.Context, ev ir.Event)

// Controller owns event ingestion and the transmission lifecycle.
//
// Thread-safety model:
//   - Log(), Flush(), Wait(), Close(), SetTransmitter(), SetObserver():
//     safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - pending is touched only by tasks on queue
//   - an event is in pending iff its row is Sending and no result has been
//     applied yet
type Controller struct {
	store         store.EventStore
	queue         *serial.Queue
	logger        *slog.Logger
	clock         Clock
	batchIDs      BatchIDGenerator
	batchSize     int
	flushInterval time.Duration

	mu          sync.RWMutex
	transmitter Transmitter
	observer    Observer

	pending  map[int64]pendingEvent
	inflight *inflight

	started   atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type pendingEvent struct {
	batch string
	event ir.Event
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock sets the clock used to select sendable events.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithBatchIDs sets the batch id generator.
func WithBatchIDs(gen BatchIDGenerator) Option {
	return func(c *Controller) {
		c.batchIDs = gen
	}
}

// WithBatchSize caps the number of events per flush. 0 means unlimited.
func WithBatchSize(n int) Option {
	return func(c *Controller) {
		c.batchSize = n
	}
}

// WithFlushInterval makes Run flush every d, so Retry events become due
// without new traffic. 0 disables the periodic flush.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.flushInterval = d
	}
}

// WithObserver sets the observer called after each persisted event.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithTransmitter registers a transmitter up front.
func WithTransmitter(t Transmitter) Option {
	return func(c *Controller) {
		c.transmitter = t
	}
}

// New creates a controller over s. Nothing runs until Run is called.
//
// The first queued task resets events left in Sending by a previous
// process, so they are selected again.
func New(s store.EventStore, opts ...Option) *Controller {
	c := &Controller{
		store:    s,
		logger:   slog.Default(),
		clock:    SystemClock{},
		batchIDs: UUIDv7Generator{},
		pending:  make(map[int64]pendingEvent),
		inflight: newInflight(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = serial.New("controller", serial.WithLogger(c.logger))
	c.queue.Submit(c.recoverSending)
	return c
}

// SetTransmitter registers t, replacing any previous transmitter. A nil t
// unregisters. The caller owns the transmitter lifecycle.
func (c *Controller) SetTransmitter(t Transmitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transmitter = t
}

// Transmitter returns the registered transmitter, or nil.
func (c *Controller) Transmitter() Transmitter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transmitter
}

// SetObserver replaces the observer. A nil o disables it.
func (c *Controller) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

func (c *Controller) currentObserver() Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observer
}

type logOptions struct {
	flush bool
}

// LogOption configures a single Log call.
type LogOption func(*logOptions)

// WithoutFlush persists the event without triggering a flush.
func WithoutFlush() LogOption {
	return func(o *logOptions) {
		o.flush = false
	}
}

// Log queues ev for persistence and, by default, a flush.
//
// Local events are accepted and dropped: nothing is stored or sent. Log
// returns before the event is persisted. Store failures are logged, never
// returned. The returned error is ir.ErrInvalidEvent for an event that
// fails validation, or ErrClosed.
func (c *Controller) Log(ev ir.Event, opts ...LogOption) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Scope == ir.ScopeLocal {
		metrics.Event(metrics.StageLocal)
		return nil
	}
	if c.closing.Load() {
		return ErrClosed
	}

	o := logOptions{flush: true}
	for _, opt := range opts {
		opt(&o)
	}

	ev.Seq = 0
	ev.Status = ir.StatusQueued
	ev.NextRetryAt = time.Time{}
	ev.Properties = ev.Properties.Clone()
	ev.Context = ev.Context.Clone()

	if !c.queue.Submit(func(ctx context.Context) { c.log(ctx, ev, o.flush) }) {
		return ErrClosed
	}
	return nil
}

func (c *Controller) log(ctx context.Context, ev ir.Event, flush bool) {
	saved, err := c.store.InsertEvent(ctx, ev)
	if err != nil {
		c.logger.Error("event not persisted",
			"event", ev.Name,
			"error", err,
		)
		metrics.Event(metrics.StageStoreError)
		return
	}
	metrics.Event(metrics.StageLogged)
	c.logger.Debug("event logged", "seq", saved.Seq, "event", saved.Name)

	if obs := c.currentObserver(); obs != nil {
		obs(ctx, saved)
	}
	if flush {
		c.flush(ctx)
	}
}

// Flush queues a flush. Returns ErrClosed after Close.
func (c *Controller) Flush() error {
	if c.closing.Load() {
		return ErrClosed
	}
	if !c.queue.Submit(c.flush) {
		return ErrClosed
	}
	return nil
}

// flush sends every sendable event to the transmitter.
// CRITICAL: Called only from queue tasks.
func (c *Controller) flush(ctx context.Context) {
	t := c.Transmitter()
	if t == nil {
		c.logger.Debug("flush skipped: no transmitter")
		metrics.Flush(metrics.FlushNoTransmitter)
		return
	}
	if st := t.State(); st != StateReady {
		c.logger.Debug("flush skipped: transmitter not ready", "state", st.String())
		metrics.Flush(metrics.FlushNotReady)
		return
	}

	events, err := c.store.SelectSendable(ctx, c.clock.Now(), store.SendableQuery{Limit: c.batchSize})
	if err != nil {
		c.logger.Error("flush failed: select sendable", "error", err)
		metrics.Flush(metrics.FlushError)
		return
	}

	batch := make([]ir.Event, 0, len(events))
	for _, ev := range events {
		ev.Status = ir.StatusSending
		marked, err := c.store.UpdateEvent(ctx, ev)
		if err != nil {
			// Left as Queued/Retry; picked up by a later flush.
			c.logger.Warn("event not marked sending",
				"seq", ev.Seq,
				"event", ev.Name,
				"error", err,
			)
			metrics.Event(metrics.StageStoreError)
			continue
		}
		batch = append(batch, marked)
	}
	if len(batch) == 0 {
		metrics.Flush(metrics.FlushEmpty)
		return
	}

	id := c.batchIDs.Generate()
	sent := make([]ir.Event, len(batch))
	for i, ev := range batch {
		c.pending[ev.Seq] = pendingEvent{batch: id, event: ev}
		sent[i] = cloneEvent(ev)
	}
	c.inflight.add(len(batch))

	metrics.Flush(metrics.FlushSent)
	metrics.EventsTotal.WithLabelValues(metrics.StageSent).Add(float64(len(batch)))
	metrics.BatchSize.Observe(float64(len(batch)))
	c.logger.Info("transmitting batch", "batch", id, "events", len(batch))

	c.transmit(ctx, t, Batch{ID: id, Events: sent})
}

func (c *Controller) transmit(ctx context.Context, t Transmitter, batch Batch) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("transmitter panicked", "batch", batch.ID, "panic", fmt.Sprint(r))
			cause := fmt.Errorf("transmitter panic: %v", r)
			for _, ev := range batch.Events {
				c.apply(ctx, batch.ID, RetryAt(ev.Seq, time.Time{}, cause))
			}
		}
	}()

	// In-flight transmissions outlive the queue context.
	t.Transmit(context.WithoutCancel(ctx), batch, c.reporter(batch.ID))
}

func (c *Controller) reporter(batchID string) ReportFunc {
	return func(r Result) {
		ok := c.queue.Submit(func(ctx context.Context) {
			c.apply(ctx, batchID, r)
		})
		if !ok {
			c.logger.Warn("transmit result dropped: controller closed",
				"batch", batchID,
				"seq", r.Seq,
				"outcome", r.Outcome.String(),
			)
		}
	}
}

// apply records one transmit result.
// CRITICAL: Called only from queue tasks.
func (c *Controller) apply(ctx context.Context, batchID string, r Result) {
	p, ok := c.pending[r.Seq]
	if !ok || p.batch != batchID {
		c.logger.Debug("ignoring transmit result",
			"batch", batchID,
			"seq", r.Seq,
			"outcome", r.Outcome.String(),
		)
		return
	}
	delete(c.pending, r.Seq)
	defer c.inflight.done()

	ev := p.event
	switch r.Outcome {
	case OutcomeSuccess:
		if err := c.store.DeleteEvent(ctx, ev); err != nil {
			c.logger.Error("sent event not deleted", "seq", ev.Seq, "error", err)
			metrics.Event(metrics.StageStoreError)
			return
		}
		metrics.Event(metrics.StageSucceeded)

	case OutcomeFailure:
		if err := c.store.DeleteEvent(ctx, ev); err != nil {
			c.logger.Error("failed event not deleted", "seq", ev.Seq, "error", err)
			metrics.Event(metrics.StageStoreError)
			return
		}
		c.logger.Warn("event discarded after permanent failure",
			"seq", ev.Seq,
			"event", ev.Name,
			"batch", batchID,
			"error", r.Err,
		)
		metrics.Event(metrics.StageFailed)

	default:
		if r.Outcome != OutcomeRetry {
			c.logger.Warn("unknown transmit outcome, retrying",
				"seq", ev.Seq,
				"outcome", r.Outcome.String(),
			)
			r.RetryAt = time.Time{}
		}
		ev.Status = ir.StatusRetry
		ev.NextRetryAt = r.RetryAt
		if _, err := c.store.UpdateEvent(ctx, ev); err != nil {
			c.logger.Error("event not marked retry", "seq", ev.Seq, "error", err)
			metrics.Event(metrics.StageStoreError)
			return
		}
		c.logger.Debug("event scheduled for retry",
			"seq", ev.Seq,
			"at", r.RetryAt,
			"error", r.Err,
		)
		metrics.Event(metrics.StageRetried)
	}
}

// Run executes controller tasks until Close drains the queue or ctx ends.
// With a flush interval it also flushes periodically.
func (c *Controller) Run(ctx context.Context) error {
	c.started.Store(true)
	c.logger.Info("controller starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.queue.Run(gctx)
	})
	if c.flushInterval > 0 {
		g.Go(func() error {
			c.tick(gctx)
			return nil
		})
	}

	err := g.Wait()
	c.logger.Info("controller stopped")
	return err
}

func (c *Controller) tick(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.queue.Done():
			return
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				return
			}
		}
	}
}

// Wait blocks until every task queued so far has run and every
// transmitted event has had its result applied, or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		if err := c.queue.Barrier(ctx); err != nil {
			return err
		}
		if err := c.inflight.wait(ctx); err != nil {
			return err
		}
		if c.queue.Len() == 0 && c.inflight.len() == 0 {
			return nil
		}
	}
}

// Barrier blocks until every task queued so far has run. Unlike Wait it
// does not wait for transmit results.
func (c *Controller) Barrier(ctx context.Context) error {
	return c.queue.Barrier(ctx)
}

// InFlight returns the number of transmitted events awaiting a result.
func (c *Controller) InFlight() int {
	return c.inflight.len()
}

// Close stops accepting events, waits for queued tasks and in-flight
// results until ctx ends, then stops Run. Results reported after Close
// returns are dropped; their events stay Sending until the next start.
func (c *Controller) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		started := c.started.Load()
		if started {
			if err := c.Wait(ctx); err != nil {
				c.logger.Warn("controller closing with work in flight",
					"in_flight", c.inflight.len(),
					"error", err,
				)
				c.closeErr = err
			}
		}

		c.queue.Close()

		if started {
			select {
			case <-c.queue.Done():
			case <-ctx.Done():
				if c.closeErr == nil {
					c.closeErr = ctx.Err()
				}
			}
		}
	})
	return c.closeErr
}

func cloneEvent(ev ir.Event) ir.Event {
	ev.Properties = ev.Properties.Clone()
	ev.Context = ev.Context.Clone()
	return ev
}
