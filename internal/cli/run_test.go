package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand_LogsInputAndPrintsDeliveries(t *testing.T) {
	db := tempDB(t)
	cfg := writeConfig(t, "transmitter:\n  kind: none\n")

	_, _, err := execute(t, "", "schedule", "--db", db, "--event", "purchase", "--data", "coupon",
		"--filter", `{"event.properties.item_name":{"eq":"iPhone"}}`)
	require.NoError(t, err)

	input := strings.Join([]string{
		`{"name":"purchase","properties":{"item_name":"iPhone"},"priority":"high"}`,
		`not json`,
		``,
		`{"name":"  "}`,
		`{"name":"screen_view","local":true}`,
	}, "\n")

	out, _, err := execute(t, input, "--config", cfg, "run", "--db", db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)

	var d Delivery
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &d))
	assert.NotZero(t, d.Delivered)
	assert.Equal(t, "purchase", d.Event)
	assert.Equal(t, "coupon", d.Data)

	assert.Equal(t, "logged 2 events (2 rejected), delivered 1 payloads", lines[1])

	out, _, err = execute(t, "", "--format", "json", "queue", "--db", db)
	require.NoError(t, err)
	var queued QueueResult
	decodeResponse(t, out, &queued)
	assert.Empty(t, queued.Payloads)
	require.Len(t, queued.Events, 1, "local events are never persisted")
	assert.Equal(t, "purchase", queued.Events[0].Name)
	assert.Equal(t, "high", queued.Events[0].Priority)
}

func TestRunCommand_JSONSummary(t *testing.T) {
	cfg := writeConfig(t, "transmitter:\n  kind: none\n")

	out, _, err := execute(t, `{"name":"app_open"}`+"\n", "--config", cfg, "--format", "json", "run", "--db", tempDB(t))
	require.NoError(t, err)

	var result RunResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, RunResult{Logged: 1}, result)
}

func TestRunCommand_TransmitsToStdout(t *testing.T) {
	out, _, err := execute(t, `{"name":"app_open","properties":{"build":42}}`, "run", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"name":"app_open"`)
	assert.Contains(t, out, "logged 1 events (0 rejected), delivered 0 payloads")
}

func TestRunCommand_ServesMetricsUntilInputEnds(t *testing.T) {
	cfg := writeConfig(t, "transmitter:\n  kind: none\n")

	out, _, err := execute(t, `{"name":"app_open"}`, "--config", cfg, "run", "--db", tempDB(t), "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Contains(t, out, "logged 1 events")
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"name":"purchase","properties":{"price":9.5},"context":{"user":"u1"},"local":true}`))
	require.NoError(t, err)
	assert.Equal(t, "purchase", ev.Name)
	assert.Equal(t, "local", ev.Scope.String())
	assert.Len(t, ev.Properties, 1)
	assert.Len(t, ev.Context, 1)

	for _, line := range []string{`[]`, `{"name":"a","priority":"urgent"}`, `{"name":"a","properties":{"nested":{}}}`} {
		_, err := decodeEvent([]byte(line))
		assert.ErrorIs(t, err, errMalformedLine, line)
	}
}
