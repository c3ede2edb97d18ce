package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/beacon/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatTraceEvent(ev))
		}
	}
	return buf.String()
}

func formatTraceEvent(ev TraceEvent) string {
	switch ev.Type {
	case TraceTransmitted:
		return fmt.Sprintf("%s %s %v -> %s", ev.Type, ev.Batch, ev.Events, ev.Outcome)
	case TraceDelivered:
		return fmt.Sprintf("%s %v", ev.Type, ev.Payloads)
	default:
		return fmt.Sprintf("%s %s", ev.Type, ev.Name)
	}
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluateOne(ctx, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) evaluateOne(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertDelivered:
		return assertLabels(AssertDelivered, *a.Payloads, result.Delivered(), result.Trace)
	case AssertTransmitted:
		return assertTransmitted(result, a)
	case AssertPendingEvents:
		return h.assertPendingEvents(ctx, a)
	case AssertPendingPayloads:
		return h.assertPendingPayloads(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertLabels(kind string, want, got []string, trace []TraceEvent) error {
	if len(want) == 0 && len(got) == 0 {
		return nil
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

func assertTransmitted(result *Result, a Assertion) error {
	got := result.Transmissions(a.Event)
	if got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTransmitted,
		Expected: fmt.Sprintf("%d transmissions of %s", *a.Count, a.Event),
		Actual:   fmt.Sprintf("%d transmissions", got),
		Trace:    result.Trace,
	}
}

func (h *Harness) assertPendingEvents(ctx context.Context, a Assertion) error {
	events, err := h.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	got := 0
	for _, ev := range events {
		if a.Status == "" || ev.Status.String() == a.Status {
			got++
		}
	}
	if got == *a.Count {
		return nil
	}

	what := "pending events"
	if a.Status != "" {
		what = a.Status + " events"
	}
	return &AssertionError{
		Type:     AssertPendingEvents,
		Expected: fmt.Sprintf("%d %s", *a.Count, what),
		Actual:   fmt.Sprintf("%d (%s)", got, describeEvents(events)),
	}
}

func describeEvents(events []ir.Event) string {
	if len(events) == 0 {
		return "none"
	}
	parts := make([]string, len(events))
	for i, ev := range events {
		parts[i] = fmt.Sprintf("%s#%d:%s", ev.Name, ev.Seq, ev.Status)
	}
	return strings.Join(parts, ", ")
}

func (h *Harness) assertPendingPayloads(ctx context.Context, a Assertion) error {
	payloads, err := h.store.ListPayloads(ctx)
	if err != nil {
		return fmt.Errorf("list payloads: %w", err)
	}
	return assertLabels(AssertPendingPayloads, *a.Payloads, h.labelsOf(payloads), nil)
}
