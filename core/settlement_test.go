package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestScaleAmount(t *testing.T) {
	cases := []struct {
		amount   int64
		from, to uint8
		want     int64
	}{
		{123, 2, 0, 1},
		{199, 2, 0, 1},
		{-123, 2, 0, -2},
		{5, 0, 3, 5000},
		{42, 4, 4, 42},
	}
	for _, c := range cases {
		got, err := ScaleAmount(c.amount, c.from, c.to)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%d from %d to %d", c.amount, c.from, c.to)
	}
	_, err := ScaleAmount(math.MaxInt64, 0, 1)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}

type engineCall struct {
	account state.AccountId
	amount  int64
	scale   uint8
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []engineCall
	settle func(ctx context.Context, amount int64) (int64, error)
}

func (f *fakeEngine) SendSettlement(ctx context.Context, account state.AccountId, amount int64, scale uint8) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, engineCall{account, amount, scale})
	settle := f.settle
	f.mu.Unlock()
	if settle == nil {
		return amount, nil
	}
	return settle(ctx, amount)
}

func (f *fakeEngine) Calls() []engineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engineCall(nil), f.calls...)
}

func newSettler(t *testing.T, engine SettlementEngine, concurrency int, accounts ...state.AccountSettings) (*Settler, *BalanceTracker) {
	t.Helper()
	tracker, _, _ := newTracker()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSettler(tracker, NewStaticAccounts(accounts...), engine, log, time.Minute, concurrency), tracker
}

var bobSettled = state.AccountSettings{
	Id:         "bob",
	AssetCode:  "USD",
	AssetScale: 2,
	Balance:    state.BalanceSettings{SettleThreshold: ptr[int64](100)},
	Settlement: state.SettlementSettings{EngineScale: ptr[uint8](4)},
}

func TestSettler_ScalesToEngine(t *testing.T) {
	engine := &fakeEngine{}
	s, tracker := newSettler(t, engine, 1, bobSettled)
	require.NoError(t, tracker.RecordSettlement("bob", 150, Incoming))

	sig, ok := tracker.CheckSettlement(bobSettled)
	require.True(t, ok)
	require.True(t, s.Handle(context.Background(), sig))
	s.Wait()

	assert.Equal(t, []engineCall{{"bob", 15000, 4}}, engine.Calls())
	assert.Equal(t, int64(0), tracker.Balance(bobSettled).Clearing)
}

func TestSettler_PartialSettlementKeepsRemainder(t *testing.T) {
	engine := &fakeEngine{settle: func(ctx context.Context, amount int64) (int64, error) {
		return 12345, nil
	}}
	s, tracker := newSettler(t, engine, 1, bobSettled)
	require.NoError(t, tracker.RecordSettlement("bob", 150, Incoming))

	require.True(t, s.Handle(context.Background(), SettlementSignal{Account: "bob", Amount: 150, Direction: Outgoing}))
	s.Wait()
	// 1.2345 settled at scale 4 is 1.23 at scale 2
	assert.Equal(t, int64(27), tracker.Balance(bobSettled).Clearing)
}

func TestSettler_Dedup(t *testing.T) {
	engine := &fakeEngine{}
	s, tracker := newSettler(t, engine, 4, bobSettled)
	require.NoError(t, tracker.RecordSettlement("bob", 500, Incoming))

	sig := SettlementSignal{Account: "bob", Amount: 100, Direction: Outgoing}
	assert.True(t, s.Handle(context.Background(), sig))
	assert.False(t, s.Handle(context.Background(), sig))
	s.Wait()
	assert.False(t, s.Handle(context.Background(), sig), "signals stay suppressed for the dedup window")
	assert.Len(t, engine.Calls(), 1)
	assert.Equal(t, int64(400), tracker.Balance(bobSettled).Clearing)
}

func TestSettler_FailureAllowsRetry(t *testing.T) {
	engine := &fakeEngine{settle: func(ctx context.Context, amount int64) (int64, error) {
		return 0, errors.New("engine offline")
	}}
	s, tracker := newSettler(t, engine, 1, bobSettled)

	sig := SettlementSignal{Account: "bob", Amount: 100, Direction: Outgoing}
	require.True(t, s.Handle(context.Background(), sig))
	s.Wait()
	assert.True(t, s.Handle(context.Background(), sig))
	s.Wait()
	assert.Len(t, engine.Calls(), 2)
	assert.Equal(t, int64(0), tracker.Balance(bobSettled).Clearing)
}

func TestSettler_RejectsOverSettlement(t *testing.T) {
	engine := &fakeEngine{settle: func(ctx context.Context, amount int64) (int64, error) {
		return amount + 1, nil
	}}
	s, tracker := newSettler(t, engine, 1, bobSettled)
	require.NoError(t, tracker.RecordSettlement("bob", 100, Incoming))

	require.True(t, s.Handle(context.Background(), SettlementSignal{Account: "bob", Amount: 100, Direction: Outgoing}))
	s.Wait()
	assert.Equal(t, int64(100), tracker.Balance(bobSettled).Clearing)
}

func TestSettler_UnknownAccount(t *testing.T) {
	engine := &fakeEngine{}
	s, _ := newSettler(t, engine, 1)
	require.True(t, s.Handle(context.Background(), SettlementSignal{Account: "ghost", Amount: 100}))
	s.Wait()
	assert.Empty(t, engine.Calls())
}

func TestSettler_BusyEngineDefers(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{settle: func(ctx context.Context, amount int64) (int64, error) {
		<-release
		return amount, nil
	}}
	carol := bobSettled
	carol.Id = "carol"
	s, _ := newSettler(t, engine, 1, bobSettled, carol)

	require.True(t, s.Handle(context.Background(), SettlementSignal{Account: "bob", Amount: 10}))
	assert.False(t, s.Handle(context.Background(), SettlementSignal{Account: "carol", Amount: 10}))
	close(release)
	s.Wait()
	// the deferred signal was not recorded as started
	assert.True(t, s.Handle(context.Background(), SettlementSignal{Account: "carol", Amount: 10}))
	s.Wait()
}

func TestSignalBus(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	bus := NewSignalBus(4)
	ch := make(chan interface{}, 4)
	bus.Subscribe(ch)

	sig := SettlementSignal{Account: "bob", Amount: 1}
	bus.Publish(sig)
	select {
	case m := <-ch:
		assert.Equal(t, sig, m)
	case <-time.After(time.Second):
		t.Fatal("signal was not delivered")
	}

	// an unread subscriber must not block close
	bus.Publish(sig)
	bus.Publish(sig)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	bus.Publish(sig)
	bus.Unsubscribe(ch)
	bus.Subscribe(make(chan interface{}))
}

func TestSettler_Run(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	engine := &fakeEngine{}
	s, tracker := newSettler(t, engine, 2, bobSettled)
	require.NoError(t, tracker.RecordSettlement("bob", 300, Incoming))
	bus := NewSignalBus(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, bus)
	}()

	// Run subscribes asynchronously, repeated signals are suppressed by the dedup window
	require.Eventually(t, func() bool {
		bus.Publish(SettlementSignal{Account: "bob", Amount: 300, Direction: Outgoing})
		return len(engine.Calls()) > 0
	}, time.Second*5, time.Millisecond*10)

	cancel()
	<-done
	require.NoError(t, bus.Close())
	assert.Len(t, engine.Calls(), 1)
	assert.Equal(t, int64(0), tracker.Balance(bobSettled).Clearing)
}
