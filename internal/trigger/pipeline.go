package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/filter"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/serial"
	"github.com/roach88/beacon/internal/store"
)

// ErrInvalidPayload is returned by Schedule for a payload whose trigger is
// incomplete.
var ErrInvalidPayload = errors.New("invalid payload")

// DeliveryFunc receives matched payloads. It is never called with an empty
// slice. Payload data must be copied if kept after return.
type DeliveryFunc func(payloads []ir.DataPayload)

// Pipeline matches logged events against scheduled payloads.
//
// Thread-safety model:
//   - Notify(), Schedule(), OnDelivery(), Wait(), Close(): safe from any
//     goroutine
//   - Run(): must be called from exactly one goroutine
type Pipeline struct {
	store   store.DataStore
	queue   *serial.Queue
	logger  *slog.Logger
	clock   engine.Clock
	cache   *filter.Cache
	filters []PayloadFilter

	mu      sync.RWMutex
	deliver DeliveryFunc

	started atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock sets the clock used by the default expiration filter.
func WithClock(clock engine.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithCache sets the compiled filter cache used by the default property
// filter.
func WithCache(c *filter.Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithFilters replaces the default chain.
func WithFilters(filters ...PayloadFilter) Option {
	return func(p *Pipeline) {
		p.filters = filters
	}
}

// WithDelivery sets the delivery callback.
func WithDelivery(fn DeliveryFunc) Option {
	return func(p *Pipeline) {
		p.deliver = fn
	}
}

// New creates a pipeline over s. The default chain is an ExpirationFilter
// followed by a PropertyFilter.
func New(s store.DataStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  s,
		logger: slog.Default(),
		clock:  engine.SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = filter.NewCache(filter.DefaultCacheSize)
	}
	if p.filters == nil {
		p.filters = []PayloadFilter{
			ExpirationFilter{Clock: p.clock},
			PropertyFilter{Cache: p.cache, Logger: p.logger},
		}
	}
	p.queue = serial.New("trigger", serial.WithLogger(p.logger))
	return p
}

// OnDelivery replaces the delivery callback.
func (p *Pipeline) OnDelivery(fn DeliveryFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliver = fn
}

func (p *Pipeline) delivery() DeliveryFunc {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deliver
}

// Schedule stores a payload until its trigger fires.
//
// Filter sources are stored byte for byte as given. A source that fails to
// compile is discarded at match time.
func (p *Pipeline) Schedule(ctx context.Context, payload ir.DataPayload) (ir.DataPayload, error) {
	if err := validatePayload(payload); err != nil {
		return payload, err
	}

	payload.ID = 0
	saved, err := p.store.InsertPayload(ctx, payload)
	if err != nil {
		return saved, err
	}
	metrics.Payloads(metrics.StageScheduled, 1)
	p.logger.Debug("payload scheduled",
		"payload", saved.ID,
		"trigger", saved.Trigger.Kind.String(),
	)
	return saved, nil
}

func validatePayload(payload ir.DataPayload) error {
	switch payload.Trigger.Kind {
	case ir.TriggerEvent:
		if strings.TrimSpace(payload.Trigger.Event.Name) == "" {
			return fmt.Errorf("%w: event trigger needs a name", ErrInvalidPayload)
		}
	case ir.TriggerDate:
		if payload.Trigger.At.IsZero() {
			return fmt.Errorf("%w: date trigger needs a time", ErrInvalidPayload)
		}
	case ir.TriggerRemote:
	default:
		return fmt.Errorf("%w: unknown trigger kind %d", ErrInvalidPayload, payload.Trigger.Kind)
	}
	return nil
}

// Notify queues matching for ev and returns immediately.
// It has the engine.Observer signature.
func (p *Pipeline) Notify(_ context.Context, ev ir.Event) {
	ev.Properties = ev.Properties.Clone()
	if !p.queue.Submit(func(ctx context.Context) { p.process(ctx, ev) }) {
		p.logger.Debug("trigger pipeline closed, event ignored", "seq", ev.Seq, "event", ev.Name)
	}
}

// process runs the filter chain for ev.
// CRITICAL: Called only from queue tasks.
func (p *Pipeline) process(ctx context.Context, ev ir.Event) {
	candidates, err := p.store.SelectByTriggerEventName(ctx, ev.Name)
	if err != nil {
		p.logger.Error("trigger lookup failed", "event", ev.Name, "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	matched := candidates
	var condemned []Mismatch
	for _, f := range p.filters {
		var mismatched []Mismatch
		matched, mismatched = f.Filter(matched, ev)
		for _, m := range mismatched {
			if m.Verdict == Delete {
				condemned = append(condemned, m)
			}
		}
	}

	doomed := make([]ir.DataPayload, 0, len(condemned)+len(matched))
	for _, m := range condemned {
		doomed = append(doomed, m.Payload)
	}
	doomed = append(doomed, matched...)
	if len(doomed) == 0 {
		return
	}

	if err := p.store.DeletePayloads(ctx, doomed); err != nil {
		// Nothing is delivered so nothing is delivered twice.
		p.logger.Error("payloads not deleted, delivery skipped",
			"event", ev.Name,
			"payloads", len(doomed),
			"error", err,
		)
		return
	}
	for _, m := range condemned {
		reason := m.Reason
		if reason == "" {
			reason = metrics.StageDiscarded
		}
		metrics.Payloads(reason, 1)
	}

	if len(matched) == 0 {
		return
	}
	metrics.Payloads(metrics.StageDelivered, len(matched))
	p.logger.Info("delivering payloads", "event", ev.Name, "seq", ev.Seq, "payloads", len(matched))

	if fn := p.delivery(); fn != nil {
		fn(matched)
	}
}

// Run executes pipeline tasks until Close drains the queue or ctx ends.
func (p *Pipeline) Run(ctx context.Context) error {
	p.started.Store(true)
	return p.queue.Run(ctx)
}

// Wait blocks until every event notified so far has been processed.
func (p *Pipeline) Wait(ctx context.Context) error {
	return p.queue.Barrier(ctx)
}

// Close stops accepting events and waits for queued ones until ctx ends.
// Close before Run returns immediately.
func (p *Pipeline) Close(ctx context.Context) error {
	p.queue.Close()
	if !p.started.Load() {
		return nil
	}
	select {
	case <-p.queue.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
