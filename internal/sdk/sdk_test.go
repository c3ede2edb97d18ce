package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/testutil"
	"github.com/roach88/beacon/internal/transmit"
	"github.com/roach88/beacon/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type deliveries struct {
	mu    sync.Mutex
	calls [][]ir.DataPayload
}

func (d *deliveries) record(ps []ir.DataPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, ps)
}

func (d *deliveries) Calls() [][]ir.DataPayload {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]ir.DataPayload(nil), d.calls...)
}

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sdk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startSDK(t *testing.T, st store.Store, opts ...Option) *SDK {
	t.Helper()
	opts = append([]Option{
		WithClock(testutil.NewFakeClock(epoch)),
		WithBatchIDs(testutil.NewSequentialIDs("batch")),
	}, opts...)
	s := New(st, opts...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func wait(t *testing.T, s *SDK) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestSDK_PurchaseDeliversScheduledPayload(t *testing.T) {
	st := openSQLite(t)
	rec := &deliveries{}
	tx := testutil.NewScriptedTransmitter(testutil.Succeed())
	s := startSDK(t, st, WithTransmitter(tx), WithDelivery(rec.record))

	saved, err := s.Schedule(context.Background(), ir.DataPayload{
		Data:    []byte("coupon"),
		Trigger: ir.OnEvent("purchase", json.RawMessage(`{"event.properties.item_name":{"in":["iPhone","iPad"]}}`)),
	})
	require.NoError(t, err)
	require.True(t, saved.Persisted())

	require.NoError(t, s.Log(ir.NewEvent("purchase", ir.Properties{"item_name": ir.String("iPhone")})))
	wait(t, s)

	calls := rec.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, saved.ID, calls[0][0].ID)
	assert.Equal(t, []byte("coupon"), calls[0][0].Data)

	payloads, err := st.ListPayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, payloads)

	events, err := st.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events, "sent events are deleted")
	assert.Len(t, tx.Events(), 1)
}

func TestSDK_LocalEventsNeverLeave(t *testing.T) {
	st := openSQLite(t)
	tx := testutil.NewScriptedTransmitter(testutil.Succeed())
	s := startSDK(t, st, WithTransmitter(tx))

	ev := ir.NewEvent("screen_view", nil)
	ev.Scope = ir.ScopeLocal
	require.NoError(t, s.Log(ev))
	wait(t, s)

	events, err := st.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, tx.Batches())
}

func TestSDK_StartStartsTransmitterAndFlushesBacklog(t *testing.T) {
	st := openSQLite(t)

	// Left over from a previous run.
	_, err := st.InsertEvent(context.Background(), ir.NewEvent("app_open", nil))
	require.NoError(t, err)

	tx := testutil.NewScriptedTransmitter(testutil.Succeed())
	tx.SetState(engine.StateConnecting)
	s := startSDK(t, st, WithTransmitter(tx))
	wait(t, s)

	assert.Equal(t, 1, tx.Starts())
	require.Len(t, tx.Events(), 1)
	assert.Equal(t, "app_open", tx.Events()[0].Name)
}

func TestSDK_RegisterAfterStartFlushes(t *testing.T) {
	st := openSQLite(t)
	s := startSDK(t, st)

	require.NoError(t, s.Log(ir.NewEvent("signup", nil)))
	wait(t, s)

	events, err := st.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1, "no transmitter, event accumulates")

	tx := testutil.NewScriptedTransmitter(testutil.Succeed())
	s.Register(tx)
	wait(t, s)

	assert.Len(t, tx.Events(), 1)
	events, err = st.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSDK_LogRejectsInvalidEvent(t *testing.T) {
	s := startSDK(t, openSQLite(t))
	assert.ErrorIs(t, s.Log(ir.NewEvent("  ", nil)), ir.ErrInvalidEvent)
}

func TestSDK_ScheduleInvalidPayload(t *testing.T) {
	s := startSDK(t, openSQLite(t))
	_, err := s.Schedule(context.Background(), ir.DataPayload{Trigger: ir.OnEvent("", nil)})
	assert.ErrorIs(t, err, trigger.ErrInvalidPayload)
}

type failingPayloadStore struct {
	store.Store
}

func (failingPayloadStore) InsertPayload(context.Context, ir.DataPayload) (ir.DataPayload, error) {
	return ir.DataPayload{}, errors.New("disk full")
}

func TestSDK_ScheduleStoreFailureIsNotSurfaced(t *testing.T) {
	s := startSDK(t, failingPayloadStore{Store: openSQLite(t)})

	saved, err := s.Schedule(context.Background(), ir.DataPayload{
		Data:    []byte("x"),
		Trigger: ir.OnEvent("purchase", nil),
	})
	require.NoError(t, err)
	assert.False(t, saved.Persisted())
	assert.Equal(t, []byte("x"), saved.Data)
}

func TestSDK_CELOperatorsAreWired(t *testing.T) {
	rec := &deliveries{}
	s := startSDK(t, openSQLite(t), WithDelivery(rec.record))

	_, err := s.Schedule(context.Background(), ir.DataPayload{
		Trigger: ir.OnEvent("search", json.RawMessage(`{"event.properties.query":{"beginswith":"iph"}}`)),
	})
	require.NoError(t, err)

	require.NoError(t, s.Log(ir.NewEvent("search", ir.Properties{"query": ir.String("iphone 15")})))
	wait(t, s)

	assert.Len(t, rec.Calls(), 1)
	assert.Equal(t, 1, s.Cache().Len())
}

func TestSDK_OnTriggerReplacesCallback(t *testing.T) {
	first, second := &deliveries{}, &deliveries{}
	s := startSDK(t, openSQLite(t), WithDelivery(first.record))
	s.OnTrigger(second.record)

	_, err := s.Schedule(context.Background(), ir.DataPayload{Trigger: ir.OnEvent("purchase", nil)})
	require.NoError(t, err)
	require.NoError(t, s.Log(ir.NewEvent("purchase", nil)))
	wait(t, s)

	assert.Empty(t, first.Calls())
	assert.Len(t, second.Calls(), 1)
}

func TestSDK_CloseIsIdempotentAndRejectsLogs(t *testing.T) {
	st := openSQLite(t)
	s := New(st)
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.Log(ir.NewEvent("late", nil)), engine.ErrClosed)
}

func TestSDK_CloseWithoutStart(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	s := New(st)
	assert.NoError(t, s.Close(context.Background()))
}

func TestOpen_StdoutTransmitterWritesBatches(t *testing.T) {
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "beacon.db")
	cfg.FlushInterval = 0

	var out bytes.Buffer
	s, err := Open(cfg, WithStdout(&out), WithBatchIDs(engine.NewFixedGenerator("b-1")))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Log(ir.NewEvent("purchase", ir.Properties{"price": ir.Int(999)})))
	wait(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	sc := bufio.NewScanner(&out)
	require.True(t, sc.Scan())
	var line transmit.Line
	require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
	assert.Equal(t, "b-1", line.Batch)
	require.Len(t, line.Events, 1)
	assert.Equal(t, "purchase", line.Events[0].Name)
	assert.Equal(t, ir.Int(999), line.Events[0].Properties["price"])
	assert.False(t, sc.Scan())
}

func TestOpen_NoneTransmitterKeepsEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "beacon.db")
	cfg.Transmitter.Kind = config.TransmitterNone

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Log(ir.NewEvent("purchase", nil)))
	wait(t, s)

	events, err := s.Store().ListEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, s.Close(context.Background()))
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transmitter.Kind = "carrier-pigeon"
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestShared(t *testing.T) {
	t.Cleanup(func() { _ = CloseShared(context.Background()) })

	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "shared.db")
	cfg.Transmitter.Kind = config.TransmitterNone
	InitShared(cfg)

	a, err := Shared()
	require.NoError(t, err)
	b, err := Shared()
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, CloseShared(context.Background()))
	require.NoError(t, CloseShared(context.Background()))
}
