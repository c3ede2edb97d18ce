package harness

import "strings"

// Trace event types.
const (
	TraceScheduled   = "scheduled"
	TraceLogged      = "logged"
	TraceDropped     = "dropped"
	TraceTransmitted = "transmitted"
	TraceDelivered   = "delivered"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Type     string   `json:"type"`
	Name     string   `json:"name,omitempty"` // event name or payload label
	Batch    string   `json:"batch,omitempty"`
	Events   []string `json:"events,omitempty"` // "name#seq"
	Outcome  string   `json:"outcome,omitempty"`
	Payloads []string `json:"payloads,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Delivered returns every delivered payload label in delivery order.
func (r *Result) Delivered() []string {
	var labels []string
	for _, ev := range r.Trace {
		if ev.Type == TraceDelivered {
			labels = append(labels, ev.Payloads...)
		}
	}
	return labels
}

// Transmissions counts how many times events named name were transmitted.
func (r *Result) Transmissions(name string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type != TraceTransmitted {
			continue
		}
		for _, e := range ev.Events {
			if evName, _, _ := strings.Cut(e, "#"); evName == name {
				n++
			}
		}
	}
	return n
}
