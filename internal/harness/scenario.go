package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beacon/internal/ir"
)

// Transmitter behaviors.
const (
	TransmitSucceed = "succeed"
	TransmitRetry   = "retry"
	TransmitFail    = "fail"
	TransmitNone    = "none"
)

// Scenario is an end-to-end conformance scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Transmitter answers every event the same way. Defaults to succeed.
	Transmitter string `yaml:"transmitter,omitempty"`

	// RetryAfter is added to the clock for Retry results. Defaults to 1m.
	RetryAfter time.Duration `yaml:"retry_after,omitempty"`

	// BatchSize caps events per batch; 0 is unlimited.
	BatchSize int `yaml:"batch_size,omitempty"`

	Payloads   []PayloadStep `yaml:"payloads,omitempty"`
	Events     []EventStep   `yaml:"events"`
	Assertions []Assertion   `yaml:"assertions"`
}

// PayloadStep schedules one payload before any event is logged.
type PayloadStep struct {
	// Label names the payload in traces and assertions.
	Label string `yaml:"label"`

	Event  string `yaml:"event"`
	Filter string `yaml:"filter,omitempty"` // JSON filter source
	Data   string `yaml:"data,omitempty"`

	// ExpiresIn is relative to the scenario start; negative is already
	// expired. Zero never expires.
	ExpiresIn time.Duration `yaml:"expires_in,omitempty"`
}

// EventStep logs one event.
type EventStep struct {
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Context    map[string]any `yaml:"context,omitempty"`
	Priority   string         `yaml:"priority,omitempty"`
	Local      bool           `yaml:"local,omitempty"`
	NoFlush    bool           `yaml:"no_flush,omitempty"`

	// Advance moves the clock forward before the event is logged.
	Advance time.Duration `yaml:"advance,omitempty"`
}

// Assertion checks the run once every step has completed.
type Assertion struct {
	Type     string    `yaml:"type"`
	Event    string    `yaml:"event,omitempty"`    // transmitted
	Count    *int      `yaml:"count,omitempty"`    // transmitted, pending_events
	Status   string    `yaml:"status,omitempty"`   // pending_events
	Payloads *[]string `yaml:"payloads,omitempty"` // delivered, pending_payloads
}

// Assertion type constants.
const (
	AssertDelivered       = "delivered"
	AssertTransmitted     = "transmitted"
	AssertPendingEvents   = "pending_events"
	AssertPendingPayloads = "pending_payloads"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Transmitter == "" {
		scenario.Transmitter = TransmitSucceed
	}
	if scenario.RetryAfter == 0 {
		scenario.RetryAfter = time.Minute
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be non-negative")
	}

	switch s.Transmitter {
	case TransmitSucceed, TransmitRetry, TransmitFail, TransmitNone:
	default:
		return fmt.Errorf("unknown transmitter %q", s.Transmitter)
	}

	labels := make(map[string]bool, len(s.Payloads))
	for i, p := range s.Payloads {
		if p.Label == "" {
			return fmt.Errorf("payloads[%d]: label is required", i)
		}
		if labels[p.Label] {
			return fmt.Errorf("payloads[%d]: duplicate label %q", i, p.Label)
		}
		labels[p.Label] = true
		if strings.TrimSpace(p.Event) == "" {
			return fmt.Errorf("payloads[%d]: event is required", i)
		}
		if p.Filter != "" && !json.Valid([]byte(p.Filter)) {
			return fmt.Errorf("payloads[%d]: filter is not valid JSON", i)
		}
	}

	for i, ev := range s.Events {
		if ev.Name == "" {
			return fmt.Errorf("events[%d]: name is required", i)
		}
		if ev.Advance < 0 {
			return fmt.Errorf("events[%d]: advance must be non-negative", i)
		}
		if _, err := ir.ParsePriority(ev.Priority); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], labels); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDelivered, AssertPendingPayloads:
		if a.Payloads == nil {
			return fmt.Errorf("assertions[%d]: payloads is required for %s", index, a.Type)
		}
		for _, l := range *a.Payloads {
			if !labels[l] {
				return fmt.Errorf("assertions[%d]: unknown payload label %q", index, l)
			}
		}
	case AssertTransmitted:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for transmitted", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for transmitted", index)
		}
	case AssertPendingEvents:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for pending_events", index)
		}
		if a.Status != "" {
			var st ir.Status
			if err := st.UnmarshalText([]byte(a.Status)); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
