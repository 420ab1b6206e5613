package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/weft/perf"
	"github.com/encodeous/weft/state"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
)

// SignalBus fans settlement signals out to every subscriber. Publishing after Close is a no-op.
type SignalBus struct {
	mu     sync.RWMutex
	closed bool
	subs   map[chan interface{}]struct{}
	b      broadcast.Broadcaster
}

func NewSignalBus(buf int) *SignalBus {
	return &SignalBus{
		b:    broadcast.NewBroadcaster(buf),
		subs: make(map[chan interface{}]struct{}),
	}
}

func (s *SignalBus) Publish(sig SettlementSignal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.b.Submit(sig)
}

func (s *SignalBus) Subscribe(ch chan interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.subs[ch] = struct{}{}
	s.b.Register(ch)
}

// drain discards everything sent on ch until the returned function is called
func drain(ch chan interface{}) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-ch:
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (s *SignalBus) Unsubscribe(ch chan interface{}) {
	stop := drain(ch)
	defer stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; !ok || s.closed {
		return
	}
	delete(s.subs, ch)
	s.b.Unregister(ch)
}

func (s *SignalBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for ch := range s.subs {
		stop := drain(ch)
		s.b.Unregister(ch)
		stop()
	}
	clear(s.subs)
	return s.b.Close()
}

// SettlementEngine moves value outside of ILP to square an account. amount is expressed in the
// engine's scale; the engine returns how much it actually settled in the same scale.
type SettlementEngine interface {
	SendSettlement(ctx context.Context, account state.AccountId, amount int64, scale uint8) (int64, error)
}

// LogEngine pretends every settlement succeeds in full
type LogEngine struct {
	Log *slog.Logger
}

func (e LogEngine) SendSettlement(ctx context.Context, account state.AccountId, amount int64, scale uint8) (int64, error) {
	e.Log.Info("settlement", "account", account, "amount", amount, "scale", scale)
	return amount, nil
}

// ScaleAmount re-expresses a fixed-point amount in another scale, rounding toward negative infinity
func ScaleAmount(amount int64, from, to uint8) (int64, error) {
	v := big.NewInt(amount)
	switch {
	case to > from:
		v.Mul(v, pow10(to-from))
	case from > to:
		v.Div(v, pow10(from-to))
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: %d at scale %d does not fit scale %d", ErrAmountTooLarge, amount, from, to)
	}
	return v.Int64(), nil
}

// Settler consumes settlement signals and drives the settlement engine. Signals for an account are
// suppressed for the dedup window once a settlement for it has started.
type Settler struct {
	Tracker  *BalanceTracker
	Accounts state.AccountProvider
	Engine   SettlementEngine
	Log      *slog.Logger

	dedup *ttlcache.Cache[state.AccountId, int64]
	group errgroup.Group
}

func NewSettler(tracker *BalanceTracker, accounts state.AccountProvider, engine SettlementEngine, log *slog.Logger, dedupWindow time.Duration, concurrency int) *Settler {
	s := &Settler{
		Tracker:  tracker,
		Accounts: accounts,
		Engine:   engine,
		Log:      log,
		dedup: ttlcache.New[state.AccountId, int64](
			ttlcache.WithTTL[state.AccountId, int64](dedupWindow),
			ttlcache.WithDisableTouchOnHit[state.AccountId, int64](),
		),
	}
	s.group.SetLimit(max(1, concurrency))
	return s
}

// Listen subscribes to bus, signals are buffered until Serve consumes them
func (s *Settler) Listen(bus *SignalBus) chan interface{} {
	ch := make(chan interface{}, state.SettlementSignalBuffer)
	bus.Subscribe(ch)
	return ch
}

// Run processes signals from bus until ctx is done, then waits for running settlements
func (s *Settler) Run(ctx context.Context, bus *SignalBus) {
	s.Serve(ctx, bus, s.Listen(bus))
}

// Serve handles signals arriving on ch, a channel returned by Listen on the same bus
func (s *Settler) Serve(ctx context.Context, bus *SignalBus, ch chan interface{}) {
	defer func() {
		bus.Unsubscribe(ch)
		_ = s.group.Wait()
	}()
	for {
		select {
		case m := <-ch:
			sig, ok := m.(SettlementSignal)
			if !ok {
				continue
			}
			s.Handle(ctx, sig)
		case <-ctx.Done():
			return
		}
	}
}

// Handle starts a settlement for sig unless one was started recently for the same account
func (s *Settler) Handle(ctx context.Context, sig SettlementSignal) bool {
	if item := s.dedup.Get(sig.Account); item != nil && !item.IsExpired() {
		return false
	}
	s.dedup.Set(sig.Account, sig.Amount, ttlcache.DefaultTTL)
	started := s.group.TryGo(func() error {
		if err := s.settle(ctx, sig); err != nil {
			s.Log.Warn("settlement failed", "account", sig.Account, "amount", sig.Amount, "error", err)
			s.dedup.Delete(sig.Account)
		}
		return nil
	})
	if !started {
		s.Log.Debug("settlement deferred, engine busy", "account", sig.Account)
		s.dedup.Delete(sig.Account)
	}
	return started
}

func (s *Settler) settle(ctx context.Context, sig SettlementSignal) error {
	acct, ok := s.Accounts.Get(sig.Account)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, sig.Account)
	}
	engineScale := acct.EngineScale()
	amount, err := ScaleAmount(sig.Amount, acct.AssetScale, engineScale)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return nil
	}
	settled, err := s.Engine.SendSettlement(ctx, acct.Id, amount, engineScale)
	if err != nil {
		return err
	}
	if settled > amount {
		return fmt.Errorf("engine settled %d, more than the %d requested", settled, amount)
	}
	recorded, err := ScaleAmount(settled, engineScale, acct.AssetScale)
	if err != nil {
		return err
	}
	if err = s.Tracker.RecordSettlement(acct.Id, recorded, sig.Direction); err != nil {
		return err
	}
	perf.SettlementsPerSecond.Add(1)
	s.Log.Debug("settled", "account", acct.Id, "amount", recorded, "direction", sig.Direction.String())
	return nil
}

// Wait blocks until every started settlement has finished
func (s *Settler) Wait() {
	_ = s.group.Wait()
}
