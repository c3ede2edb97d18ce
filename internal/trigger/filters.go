package trigger

import (
	"log/slog"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/filter"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/metrics"
)

// Verdict says what happens to a payload a filter did not match.
type Verdict int

const (
	// Keep leaves the payload stored for a later event.
	Keep Verdict = iota
	// Delete removes the payload without delivering it.
	Delete
)

func (v Verdict) String() string {
	if v == Delete {
		return "delete"
	}
	return "keep"
}

// Mismatch is a payload a filter rejected.
type Mismatch struct {
	Payload ir.DataPayload
	Verdict Verdict
	Reason  string // Metrics stage for Delete verdicts
}

// PayloadFilter splits candidate payloads for an event into matches and
// mismatches. Only matches reach the next filter of the chain.
type PayloadFilter interface {
	Filter(payloads []ir.DataPayload, ev ir.Event) (matched []ir.DataPayload, mismatched []Mismatch)
}

// ExpirationFilter deletes payloads whose ExpiresAt has passed.
type ExpirationFilter struct {
	Clock engine.Clock
}

// Filter implements PayloadFilter.
func (f ExpirationFilter) Filter(payloads []ir.DataPayload, _ ir.Event) ([]ir.DataPayload, []Mismatch) {
	now := f.Clock.Now()

	var matched []ir.DataPayload
	var mismatched []Mismatch
	for _, p := range payloads {
		if p.Expired(now) {
			mismatched = append(mismatched, Mismatch{Payload: p, Verdict: Delete, Reason: metrics.StageExpired})
			continue
		}
		matched = append(matched, p)
	}
	return matched, mismatched
}

// PropertyFilter matches the event against each payload's filter
// expression.
//
// A payload without a filter matches. A payload whose filter does not
// compile is deleted, since it could never match. Payloads without an
// event trigger are kept and never match.
type PropertyFilter struct {
	Cache  *filter.Cache
	Logger *slog.Logger
}

// Filter implements PayloadFilter.
func (f PropertyFilter) Filter(payloads []ir.DataPayload, ev ir.Event) ([]ir.DataPayload, []Mismatch) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var matched []ir.DataPayload
	var mismatched []Mismatch
	for _, p := range payloads {
		et, ok := p.Trigger.EventTrigger()
		if !ok || et.Name != ev.Name {
			mismatched = append(mismatched, Mismatch{Payload: p, Verdict: Keep})
			continue
		}
		if !et.HasFilters() {
			matched = append(matched, p)
			continue
		}

		compiled, err := f.Cache.Get(et.Filters)
		if err != nil {
			logger.Warn("discarding payload with invalid filter",
				"payload", p.ID,
				"event", ev.Name,
				"error", err,
			)
			mismatched = append(mismatched, Mismatch{Payload: p, Verdict: Delete, Reason: metrics.StageInvalid})
			continue
		}

		if compiled.Matches(ev) {
			matched = append(matched, p)
		} else {
			mismatched = append(mismatched, Mismatch{Payload: p, Verdict: Keep})
		}
	}
	return matched, mismatched
}
