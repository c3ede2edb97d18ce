package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent is returned when an event fails boundary validation.
var ErrInvalidEvent = errors.New("invalid event")

// Status is the lifecycle state of a persisted event.
// Persisted as an INTEGER; the numeric values must never change.
type Status int

const (
	StatusQueued Status = iota
	StatusSending
	StatusSuccess
	StatusRetry
	StatusError
)

var statusNames = map[Status]string{
	StatusQueued:  "queued",
	StatusSending: "sending",
	StatusSuccess: "success",
	StatusRetry:   "retry",
	StatusError:   "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for k, name := range statusNames {
		if name == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Sendable reports whether an event in this status may be picked up by a flush.
func (s Status) Sendable() bool {
	return s == StatusQueued || s == StatusRetry
}

// Scope decides whether an event leaves the process.
// The zero value is ScopeRemote.
type Scope int

const (
	// ScopeRemote events are persisted and transmitted.
	ScopeRemote Scope = iota
	// ScopeLocal events are never persisted and never reach a transmitter.
	ScopeLocal
)

func (s Scope) String() string {
	if s == ScopeLocal {
		return "local"
	}
	return "remote"
}

// Priority orders events for transmission. Persisted as an INTEGER.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// ParsePriority parses "normal" or "high" (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// Event is an occurrence logged by the host application.
//
// Context travels with the event to local observers but is never part of
// the transmitted representation.
type Event struct {
	Seq         int64      `json:"seq"` // Store-assigned, 0 until persisted
	Name        string     `json:"name"`
	Properties  Properties `json:"properties,omitempty"`
	Context     Properties `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	NextRetryAt time.Time  `json:"next_retry_at,omitzero"` // Zero means "send as soon as possible"
	Status      Status     `json:"status"`
	Scope       Scope      `json:"-"`
	Priority    Priority   `json:"priority"`
}

// NewEvent creates a remote, queued event.
func NewEvent(name string, props Properties) Event {
	return Event{
		Name:       name,
		Properties: props,
		Status:     StatusQueued,
		Scope:      ScopeRemote,
	}
}

// Persisted reports whether the store has assigned a sequence id.
func (e Event) Persisted() bool {
	return e.Seq != 0
}

// Validate checks the invariants the SDK enforces at its boundary.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if e.Scope != ScopeRemote && e.Scope != ScopeLocal {
		return fmt.Errorf("%w: unknown scope %d", ErrInvalidEvent, e.Scope)
	}
	return nil
}

// TriggerKind discriminates Trigger variants. Persisted as an INTEGER.
type TriggerKind int

const (
	TriggerEvent TriggerKind = iota + 1
	TriggerDate
	TriggerRemote
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerEvent:
		return "event"
	case TriggerDate:
		return "date"
	case TriggerRemote:
		return "remote"
	default:
		return fmt.Sprintf("trigger(%d)", int(k))
	}
}

// EventTrigger fires a payload when an event with exactly Name is logged and
// the optional filter expression matches the event's properties.
type EventTrigger struct {
	Name    string          `json:"name"`
	Filters json.RawMessage `json:"filters,omitempty"`
}

// HasFilters reports whether a filter expression is attached.
func (t EventTrigger) HasFilters() bool {
	s := strings.TrimSpace(string(t.Filters))
	return s != "" && s != "null"
}

// Trigger is the delivery condition of a DataPayload.
// Exactly one of Event (Kind == TriggerEvent) or At (Kind == TriggerDate)
// is meaningful; TriggerRemote carries no data.
type Trigger struct {
	Kind  TriggerKind  `json:"kind"`
	Event EventTrigger `json:"event,omitzero"`
	At    time.Time    `json:"at,omitzero"`
}

// OnEvent builds an event trigger. filters may be nil.
func OnEvent(name string, filters json.RawMessage) Trigger {
	return Trigger{Kind: TriggerEvent, Event: EventTrigger{Name: name, Filters: filters}}
}

// AtDate builds a date trigger.
func AtDate(at time.Time) Trigger {
	return Trigger{Kind: TriggerDate, At: at}
}

// RemoteTrigger builds a trigger fired by the backend.
func RemoteTrigger() Trigger {
	return Trigger{Kind: TriggerRemote}
}

// EventTrigger returns the event trigger and true when Kind is TriggerEvent.
func (t Trigger) EventTrigger() (EventTrigger, bool) {
	if t.Kind != TriggerEvent {
		return EventTrigger{}, false
	}
	return t.Event, true
}

// DataPayload is opaque host data delivered back to the host when its
// Trigger fires. It is persisted until fired, discarded or expired.
type DataPayload struct {
	ID        int64      `json:"id"` // Store-assigned, 0 until persisted
	Data      []byte     `json:"data"`
	UserInfo  Properties `json:"user_info,omitempty"`
	Trigger   Trigger    `json:"trigger"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"` // Zero means "never"
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Persisted reports whether the store has assigned an entry id.
func (p DataPayload) Persisted() bool {
	return p.ID != 0
}

// Expired reports whether ExpiresAt is set and strictly before now.
func (p DataPayload) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && p.ExpiresAt.Before(now)
}
