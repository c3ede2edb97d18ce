// Package sdk assembles the store, the event controller and the trigger
// pipeline into the host-facing API.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/filter"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/transmit"
	"github.com/roach88/beacon/internal/trigger"
)

// SDK is the host-facing aggregate.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - Start and Close take effect once
type SDK struct {
	store      store.Store
	ownsStore  bool
	logger     *slog.Logger
	controller *engine.Controller
	pipeline   *trigger.Pipeline
	cache      *filter.Cache

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// New assembles an SDK over st. The caller keeps ownership of st.
func New(st store.Store, opts ...Option) *SDK {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return build(st, o)
}

func build(st store.Store, o options) *SDK {
	ops := o.operators
	if ops == nil {
		cel, err := filter.NewCELOperators()
		if err != nil {
			o.logger.Warn("pass-through filter operators unavailable", "error", err)
		} else {
			ops = cel
		}
	}
	var cacheOpts []filter.Option
	if ops != nil {
		cacheOpts = append(cacheOpts, filter.WithOperators(ops))
	}
	cache := filter.NewCache(o.cacheSize, cacheOpts...)

	pipeline := trigger.New(st,
		trigger.WithLogger(o.logger),
		trigger.WithClock(o.clock),
		trigger.WithCache(cache),
		trigger.WithDelivery(o.deliver),
	)

	ctrlOpts := []engine.Option{
		engine.WithLogger(o.logger),
		engine.WithClock(o.clock),
		engine.WithBatchIDs(o.batchIDs),
		engine.WithBatchSize(o.batchSize),
		engine.WithFlushInterval(o.flushInterval),
		engine.WithObserver(pipeline.Notify),
	}
	if o.transmitter != nil {
		ctrlOpts = append(ctrlOpts, engine.WithTransmitter(o.transmitter))
	}

	return &SDK{
		store:      st,
		logger:     o.logger,
		controller: engine.New(st, ctrlOpts...),
		pipeline:   pipeline,
		cache:      cache,
	}
}

// Open builds an SDK from cfg. The SQLite database and the configured
// transmitter are owned by the SDK and released by Close. Options apply
// after the configuration.
func Open(cfg config.Config, opts ...Option) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	o.batchSize = cfg.BatchSize
	o.flushInterval = cfg.FlushInterval
	o.cacheSize = cfg.Filter.CacheSize
	for _, opt := range opts {
		opt(&o)
	}

	if o.transmitter == nil {
		t, err := openTransmitter(cfg.Transmitter, o)
		if err != nil {
			return nil, err
		}
		o.transmitter = t
	}

	st, err := store.Open(cfg.Database, store.WithLogger(o.logger))
	if err != nil {
		if o.transmitter != nil {
			o.transmitter.Dispose()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := build(st, o)
	s.ownsStore = true
	return s, nil
}

func openTransmitter(cfg config.TransmitterConfig, o options) (engine.Transmitter, error) {
	topts := []transmit.Option{
		transmit.WithClock(o.clock),
		transmit.WithLogger(o.logger),
	}
	if cfg.RetryDelay > 0 {
		topts = append(topts, transmit.WithRetryDelay(cfg.RetryDelay))
	}

	switch cfg.Kind {
	case config.TransmitterStdout:
		return transmit.NewWriter(o.stdout, topts...), nil
	case config.TransmitterFile:
		t, err := transmit.OpenFile(cfg.Path, topts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransmitterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transmitter kind %q", cfg.Kind)
	}
}

// Start runs the controller and the pipeline, starts the registered
// transmitter and flushes anything left from a previous run.
// A transmitter that fails to start is logged; events accumulate until a
// later flush finds it ready.
func (s *SDK) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.controller.Run(gctx) })
	g.Go(func() error { return s.pipeline.Run(gctx) })
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	s.logger.Info("sdk started")
	s.startTransmitter(ctx, s.controller.Transmitter())
	return s.controller.Flush()
}

func (s *SDK) startTransmitter(ctx context.Context, t engine.Transmitter) {
	if t == nil {
		return
	}
	if err := t.Start(ctx); err != nil {
		s.logger.Warn("transmitter not started", "error", err)
	}
}

func (s *SDK) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Register replaces the transmitter. After Start the new transmitter is
// started and flushed immediately.
func (s *SDK) Register(t engine.Transmitter) {
	s.controller.SetTransmitter(t)
	if !s.isStarted() {
		return
	}
	s.startTransmitter(context.Background(), t)
	if err := s.controller.Flush(); err != nil {
		s.logger.Debug("flush after register skipped", "error", err)
	}
}

// Log records ev. Local events are dropped; remote events are persisted,
// matched against scheduled payloads and flushed unless WithoutFlush is
// given. Only invalid events and a closed SDK return an error.
func (s *SDK) Log(ev ir.Event, opts ...engine.LogOption) error {
	return s.controller.Log(ev, opts...)
}

// Schedule stores payload until its trigger fires. An incomplete trigger
// returns trigger.ErrInvalidPayload. A store failure is logged and the
// payload is returned unpersisted (ID 0).
func (s *SDK) Schedule(ctx context.Context, payload ir.DataPayload) (ir.DataPayload, error) {
	saved, err := s.pipeline.Schedule(ctx, payload)
	if err == nil {
		return saved, nil
	}
	if errors.Is(err, trigger.ErrInvalidPayload) {
		return payload, err
	}
	s.logger.Error("payload not scheduled", "trigger", payload.Trigger.Kind.String(), "error", err)
	payload.ID = 0
	return payload, nil
}

// OnTrigger sets the host delivery callback. fn runs on the trigger
// pipeline and must copy payload data it keeps.
func (s *SDK) OnTrigger(fn func([]ir.DataPayload)) {
	s.pipeline.OnDelivery(fn)
}

// Flush queues a flush.
func (s *SDK) Flush() error {
	return s.controller.Flush()
}

// Wait blocks until every event logged so far has been persisted,
// matched and, if transmitted, had its result applied.
func (s *SDK) Wait(ctx context.Context) error {
	if err := s.controller.Wait(ctx); err != nil {
		return err
	}
	return s.pipeline.Wait(ctx)
}

// Cache returns the compiled filter cache.
func (s *SDK) Cache() *filter.Cache {
	return s.cache
}

// Store returns the underlying store.
func (s *SDK) Store() store.Store {
	return s.store
}

// Close drains the controller and then the pipeline until ctx ends,
// disposes the transmitter and releases an owned store.
func (s *SDK) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.controller.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close controller: %w", err))
		}
		if err := s.pipeline.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close pipeline: %w", err))
		}

		s.mu.Lock()
		cancel, group := s.cancel, s.group
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		}

		if t := s.controller.Transmitter(); t != nil {
			t.Dispose()
		}
		if s.ownsStore {
			if err := s.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("sdk closed")
	})
	return s.closeErr
}
