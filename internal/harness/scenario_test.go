package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/retry_then_resend.yaml")
	require.NoError(t, err)

	assert.Equal(t, "retry_then_resend", s.Name)
	assert.Equal(t, TransmitRetry, s.Transmitter)
	assert.Equal(t, time.Minute, s.RetryAfter)
	require.Len(t, s.Events, 3)
	assert.Equal(t, 30*time.Second, s.Events[1].Advance)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, "retry", s.Assertions[2].Status)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: defaults
description: "d"
events: [{name: x}]
assertions: [{type: pending_events, count: 0}]
`))
	require.NoError(t, err)
	assert.Equal(t, TransmitSucceed, s.Transmitter)
	assert.Equal(t, time.Minute, s.RetryAfter)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "unknown field",
			yaml:   "name: a\ndescription: b\nevent: []\n",
			errMsg: "field event not found",
		},
		{
			name:   "missing name",
			yaml:   "description: b\nevents: [{name: x}]\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "name is required",
		},
		{
			name:   "missing events",
			yaml:   "name: a\ndescription: b\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "events list is required",
		},
		{
			name:   "unknown transmitter",
			yaml:   "name: a\ndescription: b\ntransmitter: pigeon\nevents: [{name: x}]\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "unknown transmitter",
		},
		{
			name:   "duplicate label",
			yaml:   "name: a\ndescription: b\npayloads: [{label: p, event: e}, {label: p, event: e}]\nevents: [{name: x}]\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "duplicate label",
		},
		{
			name:   "invalid filter json",
			yaml:   "name: a\ndescription: b\npayloads: [{label: p, event: e, filter: '{'}]\nevents: [{name: x}]\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "not valid JSON",
		},
		{
			name:   "bad priority",
			yaml:   "name: a\ndescription: b\nevents: [{name: x, priority: urgent}]\nassertions: [{type: pending_events, count: 0}]\n",
			errMsg: "events[0]",
		},
		{
			name:   "unknown label in assertion",
			yaml:   "name: a\ndescription: b\nevents: [{name: x}]\nassertions: [{type: delivered, payloads: [ghost]}]\n",
			errMsg: "unknown payload label",
		},
		{
			name:   "transmitted without count",
			yaml:   "name: a\ndescription: b\nevents: [{name: x}]\nassertions: [{type: transmitted, event: x}]\n",
			errMsg: "count is required",
		},
		{
			name:   "bad status",
			yaml:   "name: a\ndescription: b\nevents: [{name: x}]\nassertions: [{type: pending_events, count: 0, status: lost}]\n",
			errMsg: "unknown status",
		},
		{
			name:   "unknown assertion",
			yaml:   "name: a\ndescription: b\nevents: [{name: x}]\nassertions: [{type: final_state}]\n",
			errMsg: "unknown assertion type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestScenarioFiles_AllParse(t *testing.T) {
	entries, err := os.ReadDir("testdata/scenarios")
	require.NoError(t, err)
	for _, e := range entries {
		_, err := LoadScenario(filepath.Join("testdata/scenarios", e.Name()))
		assert.NoError(t, err, e.Name())
	}
}
