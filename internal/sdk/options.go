package sdk

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/filter"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/trigger"
)

type options struct {
	logger        *slog.Logger
	clock         engine.Clock
	batchIDs      engine.BatchIDGenerator
	batchSize     int
	flushInterval time.Duration
	cacheSize     int
	operators     filter.Operators
	transmitter   engine.Transmitter
	deliver       trigger.DeliveryFunc
	stdout        io.Writer
}

func defaultOptions() options {
	return options{
		logger:    slog.Default(),
		clock:     engine.SystemClock{},
		batchIDs:  engine.UUIDv7Generator{},
		cacheSize: filter.DefaultCacheSize,
		stdout:    os.Stdout,
	}
}

// Option configures an SDK.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithClock(clock engine.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithBatchIDs(gen engine.BatchIDGenerator) Option {
	return func(o *options) {
		o.batchIDs = gen
	}
}

// WithBatchSize caps the number of events per transmitted batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithFlushInterval enables the periodic flush.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) {
		o.flushInterval = d
	}
}

// WithCacheSize bounds the compiled filter cache.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithOperators replaces the pass-through operator set. The default is
// filter.NewCELOperators.
func WithOperators(ops filter.Operators) Option {
	return func(o *options) {
		o.operators = ops
	}
}

// WithTransmitter registers t before Start.
func WithTransmitter(t engine.Transmitter) Option {
	return func(o *options) {
		o.transmitter = t
	}
}

// WithDelivery sets the host delivery callback.
func WithDelivery(fn func([]ir.DataPayload)) Option {
	return func(o *options) {
		o.deliver = trigger.DeliveryFunc(fn)
	}
}

// WithStdout sets where the stdout transmitter writes. Used by Open.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}
