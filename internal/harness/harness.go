package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/sdk"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/testutil"
)

// Epoch is the fake clock's start for every scenario.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// StepTimeout bounds how long the runner waits for the SDK to go idle.
const StepTimeout = 10 * time.Second

var errRejected = errors.New("rejected by scenario transmitter")

// Harness holds the per-run state of a scenario.
type Harness struct {
	sdk         *sdk.SDK
	store       store.Store
	clock       *testutil.FakeClock
	transmitter *testutil.ScriptedTransmitter
	outcome     string
	logger      *slog.Logger

	labels  map[int64]string
	batches int // batches already traced

	mu        sync.Mutex
	delivered [][]ir.DataPayload
}

// Run executes a scenario against a fresh in-memory database.
//
// Execution flow:
//  1. Schedule every payload
//  2. Log each event, waiting for the SDK to go idle after each one
//  3. Evaluate assertions against the trace and the final store contents
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with SDK logs sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:", store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewFakeClock(Epoch),
		logger: logger,
		labels: make(map[int64]string),
	}

	opts := []sdk.Option{
		sdk.WithLogger(logger),
		sdk.WithClock(h.clock),
		sdk.WithBatchIDs(testutil.NewSequentialIDs("batch")),
		sdk.WithBatchSize(scenario.BatchSize),
		sdk.WithDelivery(h.record),
	}
	if t := h.newTransmitter(scenario); t != nil {
		h.transmitter = t
		opts = append(opts, sdk.WithTransmitter(t))
	}
	h.sdk = sdk.New(st, opts...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), StepTimeout)
		defer cancel()
		if err := h.sdk.Close(closeCtx); err != nil {
			logger.Warn("sdk not closed cleanly", "scenario", scenario.Name, "error", err)
		}
	}()

	if err := h.sdk.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start sdk: %w", err)
	}

	result := NewResult()
	if err := h.schedule(ctx, scenario.Payloads, result); err != nil {
		return nil, err
	}
	if err := h.logEvents(ctx, scenario.Events, result); err != nil {
		return nil, err
	}

	for _, msg := range h.evaluate(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) newTransmitter(scenario *Scenario) *testutil.ScriptedTransmitter {
	switch scenario.Transmitter {
	case TransmitRetry:
		h.outcome = engine.OutcomeRetry.String()
		return testutil.NewScriptedTransmitter(testutil.RetryAfter(h.clock, scenario.RetryAfter))
	case TransmitFail:
		h.outcome = engine.OutcomeFailure.String()
		return testutil.NewScriptedTransmitter(testutil.Fail(errRejected))
	case TransmitNone:
		return nil
	default:
		h.outcome = engine.OutcomeSuccess.String()
		return testutil.NewScriptedTransmitter(testutil.Succeed())
	}
}

func (h *Harness) record(ps []ir.DataPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = append(h.delivered, ps)
}

func (h *Harness) takeDelivered() [][]ir.DataPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.delivered
	h.delivered = nil
	return out
}

func (h *Harness) schedule(ctx context.Context, payloads []PayloadStep, result *Result) error {
	for i, step := range payloads {
		p := ir.DataPayload{
			Data:    []byte(step.Data),
			Trigger: ir.OnEvent(step.Event, nil),
		}
		if step.Filter != "" {
			p.Trigger.Event.Filters = []byte(step.Filter)
		}
		if step.ExpiresIn != 0 {
			p.ExpiresAt = h.clock.Now().Add(step.ExpiresIn)
		}

		saved, err := h.sdk.Schedule(ctx, p)
		if err != nil {
			return fmt.Errorf("payload %d (%s): %w", i, step.Label, err)
		}
		if !saved.Persisted() {
			return fmt.Errorf("payload %d (%s): not persisted", i, step.Label)
		}
		h.labels[saved.ID] = step.Label
		result.add(TraceEvent{Type: TraceScheduled, Name: step.Label})
	}
	return nil
}

func (h *Harness) logEvents(ctx context.Context, events []EventStep, result *Result) error {
	for i, step := range events {
		if step.Advance > 0 {
			h.clock.Advance(step.Advance)
		}

		ev, err := buildEvent(step)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		var opts []engine.LogOption
		if step.NoFlush {
			opts = append(opts, engine.WithoutFlush())
		}
		if err := h.sdk.Log(ev, opts...); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if err := h.wait(ctx); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		if step.Local {
			result.add(TraceEvent{Type: TraceDropped, Name: step.Name})
		} else {
			result.add(TraceEvent{Type: TraceLogged, Name: step.Name})
		}
		h.traceTransmissions(result)
		h.traceDeliveries(result)

		h.logger.Debug("event step completed", "step", i, "event", step.Name)
	}
	return nil
}

func buildEvent(step EventStep) (ir.Event, error) {
	props, err := ir.PropertiesFromMap(step.Properties)
	if err != nil {
		return ir.Event{}, err
	}
	ctxProps, err := ir.PropertiesFromMap(step.Context)
	if err != nil {
		return ir.Event{}, err
	}
	priority, err := ir.ParsePriority(step.Priority)
	if err != nil {
		return ir.Event{}, err
	}

	ev := ir.NewEvent(step.Name, props)
	ev.Context = ctxProps
	ev.Priority = priority
	if step.Local {
		ev.Scope = ir.ScopeLocal
	}
	return ev, nil
}

func (h *Harness) wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()
	return h.sdk.Wait(ctx)
}

func (h *Harness) traceTransmissions(result *Result) {
	if h.transmitter == nil {
		return
	}
	batches := h.transmitter.Batches()
	for _, b := range batches[h.batches:] {
		ids := make([]string, len(b.Events))
		for i, ev := range b.Events {
			ids[i] = fmt.Sprintf("%s#%d", ev.Name, ev.Seq)
		}
		result.add(TraceEvent{
			Type:    TraceTransmitted,
			Batch:   b.ID,
			Events:  ids,
			Outcome: h.outcome,
		})
	}
	h.batches = len(batches)
}

func (h *Harness) traceDeliveries(result *Result) {
	for _, ps := range h.takeDelivered() {
		result.add(TraceEvent{Type: TraceDelivered, Payloads: h.labelsOf(ps)})
	}
}

func (h *Harness) labelsOf(ps []ir.DataPayload) []string {
	labels := make([]string, len(ps))
	for i, p := range ps {
		if l, ok := h.labels[p.ID]; ok {
			labels[i] = l
		} else {
			labels[i] = fmt.Sprintf("payload#%d", p.ID)
		}
	}
	return labels
}
