package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/queryir"
)

// Column lists in scan order.
var (
	eventColumns = []string{
		"id", "name", "created_at", "updated_at", "next_try_at",
		"priority", "status", "properties", "context",
	}
	payloadColumns = []string{
		"id", "trigger_kind", "event_name", "event_filter", "created_at",
		"updated_at", "execute_at", "expires_at", "data", "context",
	}
)

// encodeTime stores t as Unix microseconds and the zero time as 0.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.UnixMicro(n).UTC()
}

// marshalProperties converts Properties to JSON TEXT with sorted keys.
// nil and empty both encode as "{}".
func marshalProperties(p ir.Properties) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// unmarshalProperties parses JSON TEXT to Properties. "{}" decodes to nil.
func unmarshalProperties(data string) (ir.Properties, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var p ir.Properties
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return p, nil
}

// eventAssignments returns every column except id.
func eventAssignments(ev ir.Event) ([]queryir.Assignment, error) {
	props, err := marshalProperties(ev.Properties)
	if err != nil {
		return nil, err
	}
	ctxJSON, err := marshalProperties(ev.Context)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	return []queryir.Assignment{
		{Column: "name", Value: ev.Name},
		{Column: "created_at", Value: encodeTime(ev.CreatedAt)},
		{Column: "updated_at", Value: encodeTime(ev.UpdatedAt)},
		{Column: "next_try_at", Value: encodeTime(ev.NextRetryAt)},
		{Column: "priority", Value: int64(ev.Priority)},
		{Column: "status", Value: int64(ev.Status)},
		{Column: "properties", Value: props},
		{Column: "context", Value: ctxJSON},
	}, nil
}

// scanEvent decodes one row selected with eventColumns.
// A scan failure is an EXECUTE error; a decoding failure is a PARSE error.
func scanEvent(rows *sql.Rows) (ir.Event, error) {
	var (
		ev                              ir.Event
		createdAt, updatedAt, nextTryAt int64
		priority, status                int64
		propsJSON, ctxJSON              string
	)
	if err := rows.Scan(&ev.Seq, &ev.Name, &createdAt, &updatedAt, &nextTryAt,
		&priority, &status, &propsJSON, &ctxJSON); err != nil {
		return ir.Event{}, execError("scan event", err)
	}

	ev.CreatedAt = decodeTime(createdAt)
	ev.UpdatedAt = decodeTime(updatedAt)
	ev.NextRetryAt = decodeTime(nextTryAt)
	ev.Priority = ir.Priority(priority)
	ev.Status = ir.Status(status)
	ev.Scope = ir.ScopeRemote // Only remote events are ever stored

	var err error
	if ev.Properties, err = unmarshalProperties(propsJSON); err != nil {
		return ir.Event{}, parseError(fmt.Sprintf("event %d", ev.Seq), err)
	}
	if ev.Context, err = unmarshalProperties(ctxJSON); err != nil {
		return ir.Event{}, parseError(fmt.Sprintf("event %d context", ev.Seq), err)
	}
	return ev, nil
}

// payloadAssignments returns every column except id.
func payloadAssignments(p ir.DataPayload) ([]queryir.Assignment, error) {
	userInfo, err := marshalProperties(p.UserInfo)
	if err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}

	var eventName, eventFilter string
	if et, ok := p.Trigger.EventTrigger(); ok {
		eventName = et.Name
		if et.HasFilters() {
			eventFilter = string(et.Filters)
		}
	}

	data := p.Data
	if data == nil {
		data = []byte{} // NOT NULL column
	}

	return []queryir.Assignment{
		{Column: "trigger_kind", Value: int64(p.Trigger.Kind)},
		{Column: "event_name", Value: eventName},
		{Column: "event_filter", Value: eventFilter},
		{Column: "created_at", Value: encodeTime(p.CreatedAt)},
		{Column: "updated_at", Value: encodeTime(p.UpdatedAt)},
		{Column: "execute_at", Value: encodeTime(p.Trigger.At)},
		{Column: "expires_at", Value: encodeTime(p.ExpiresAt)},
		{Column: "data", Value: data},
		{Column: "context", Value: userInfo},
	}, nil
}

// scanPayload decodes one row selected with payloadColumns.
func scanPayload(rows *sql.Rows) (ir.DataPayload, error) {
	var (
		p                                          ir.DataPayload
		kind                                       int64
		eventName, eventFilter, userInfoJSON       string
		createdAt, updatedAt, executeAt, expiresAt int64
		data                                       []byte
	)
	if err := rows.Scan(&p.ID, &kind, &eventName, &eventFilter, &createdAt,
		&updatedAt, &executeAt, &expiresAt, &data, &userInfoJSON); err != nil {
		return ir.DataPayload{}, execError("scan payload", err)
	}

	p.CreatedAt = decodeTime(createdAt)
	p.UpdatedAt = decodeTime(updatedAt)
	p.ExpiresAt = decodeTime(expiresAt)
	p.Data = data

	switch ir.TriggerKind(kind) {
	case ir.TriggerEvent:
		var filters json.RawMessage
		if eventFilter != "" {
			filters = json.RawMessage(eventFilter)
		}
		p.Trigger = ir.OnEvent(eventName, filters)
	case ir.TriggerDate:
		p.Trigger = ir.AtDate(decodeTime(executeAt))
	case ir.TriggerRemote:
		p.Trigger = ir.RemoteTrigger()
	default:
		return ir.DataPayload{}, parseError(fmt.Sprintf("payload %d", p.ID),
			fmt.Errorf("unknown trigger kind %d", kind))
	}

	var err error
	if p.UserInfo, err = unmarshalProperties(userInfoJSON); err != nil {
		return ir.DataPayload{}, parseError(fmt.Sprintf("payload %d user info", p.ID), err)
	}
	return p, nil
}
