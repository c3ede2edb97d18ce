package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/roach88/beacon/internal/ir"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// tickingNow returns a time source that advances one second per call.
func tickingNow() func() time.Time {
	var mu sync.Mutex
	t := testEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// createTestStore opens a fresh SQLite store under t.TempDir().
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithNow(tickingNow()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore(WithNow(tickingNow()))
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func createTestEvent(name string, props ir.Properties) ir.Event {
	ev := ir.NewEvent(name, props)
	ev.CreatedAt = testEpoch
	return ev
}

func createTestPayload(name string, filters string) ir.DataPayload {
	var raw []byte
	if filters != "" {
		raw = []byte(filters)
	}
	return ir.DataPayload{
		Data:      []byte("payload-" + name),
		Trigger:   ir.OnEvent(name, raw),
		CreatedAt: testEpoch,
	}
}
