package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Defaults(t *testing.T) {
	ev := NewEvent("purchase", Properties{"item_name": String("iPhone")})

	assert.Equal(t, StatusQueued, ev.Status)
	assert.Equal(t, ScopeRemote, ev.Scope)
	assert.Equal(t, PriorityNormal, ev.Priority)
	assert.False(t, ev.Persisted())
	assert.NoError(t, ev.Validate())
}

func TestEventValidate(t *testing.T) {
	err := NewEvent("  ", nil).Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	ev := NewEvent("x", nil)
	ev.Scope = Scope(9)
	assert.ErrorIs(t, ev.Validate(), ErrInvalidEvent)
}

func TestEventJSON_HidesContextAndScope(t *testing.T) {
	ev := NewEvent("purchase", Properties{"a": Int(1)})
	ev.Seq = 3
	ev.Context = Properties{"screen": String("cart")}
	ev.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev.UpdatedAt = ev.CreatedAt

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	s := string(data)
	assert.NotContains(t, s, "screen")
	assert.NotContains(t, s, "scope")
	assert.NotContains(t, s, "next_retry_at")
	assert.Contains(t, s, `"status":"queued"`)
	assert.Contains(t, s, `"properties":{"a":1}`)
}

func TestStatusText(t *testing.T) {
	for s := StatusQueued; s <= StatusError; s++ {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var back Status
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestStatusSendable(t *testing.T) {
	assert.True(t, StatusQueued.Sendable())
	assert.True(t, StatusRetry.Sendable())
	assert.False(t, StatusSending.Sendable())
	assert.False(t, StatusSuccess.Sendable())
	assert.False(t, StatusError.Sendable())
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestTriggers(t *testing.T) {
	tr := OnEvent("purchase", json.RawMessage(`{"a":{"eq":1}}`))
	et, ok := tr.EventTrigger()
	require.True(t, ok)
	assert.Equal(t, "purchase", et.Name)
	assert.True(t, et.HasFilters())

	_, ok = AtDate(time.Now()).EventTrigger()
	assert.False(t, ok)
	_, ok = RemoteTrigger().EventTrigger()
	assert.False(t, ok)

	assert.False(t, EventTrigger{Name: "x"}.HasFilters())
	assert.False(t, EventTrigger{Name: "x", Filters: json.RawMessage("null")}.HasFilters())
}

func TestDataPayloadExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, DataPayload{}.Expired(now), "zero ExpiresAt never expires")
	assert.True(t, DataPayload{ExpiresAt: now.Add(-time.Second)}.Expired(now))
	assert.False(t, DataPayload{ExpiresAt: now}.Expired(now))
	assert.False(t, DataPayload{ExpiresAt: now.Add(time.Hour)}.Expired(now))
}
