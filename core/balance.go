package core

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/weft/perf"
	"github.com/encodeous/weft/state"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Balance is a point-in-time view of an account's ledger
type Balance struct {
	Account state.AccountId
	// Clearing is the net position of the account. Reservations are debited here immediately.
	Clearing int64
	// InFlight is the sum of unresolved reservations against the account
	InFlight int64
	// Incoming is the credit of unresolved reservations towards the account
	Incoming        int64
	MinBalance      *int64
	SettleThreshold *int64
}

// AvailableToSend is how much more the account may be debited, math.MaxInt64 without a minimum balance
func (b Balance) AvailableToSend() int64 {
	if b.MinBalance == nil {
		return math.MaxInt64
	}
	return max(0, b.Clearing-*b.MinBalance)
}

// AvailableToReceive is how much more the account may be credited before it reaches its settle
// threshold, math.MaxInt64 without one
func (b Balance) AvailableToReceive() int64 {
	if b.SettleThreshold == nil {
		return math.MaxInt64
	}
	return max(0, *b.SettleThreshold-b.Clearing-b.Incoming)
}

type SettlementDirection int

const (
	Outgoing SettlementDirection = iota
	Incoming
)

func (d SettlementDirection) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

type SettlementSignal struct {
	Account   state.AccountId
	Amount    int64
	Direction SettlementDirection
}

// SignalSink receives settlement signals
type SignalSink interface {
	Publish(sig SettlementSignal)
}

// Transfer describes the movement of value for a single forwarded packet
type Transfer struct {
	Source            state.AccountSettings
	Destination       state.AccountSettings
	SourceAmount      uint64
	DestinationAmount uint64
	// ExpiresAt is the deadline of the outgoing packet, an unresolved reservation is rolled back then
	ExpiresAt time.Time
}

type accountLedger struct {
	mu       sync.Mutex
	clearing int64
	inFlight int64
	incoming int64
	limiter  *rate.Limiter
}

// BalanceTracker keeps one ledger per account. Each ledger has its own lock, so traffic on different
// accounts never contends.
type BalanceTracker struct {
	clock   clockwork.Clock
	log     *slog.Logger
	signals SignalSink

	ledgers  sync.Map // state.AccountId -> *accountLedger
	inFlight atomic.Int64
}

func NewBalanceTracker(clock clockwork.Clock, log *slog.Logger, signals SignalSink) *BalanceTracker {
	if log == nil {
		log = slog.Default()
	}
	return &BalanceTracker{clock: clock, log: log, signals: signals}
}

func (b *BalanceTracker) ledger(id state.AccountId) *accountLedger {
	if l, ok := b.ledgers.Load(id); ok {
		return l.(*accountLedger)
	}
	l, _ := b.ledgers.LoadOrStore(id, &accountLedger{})
	return l.(*accountLedger)
}

// allow must be called with l.mu held
func (l *accountLedger) allow(settings state.RateLimitSettings, now time.Time) bool {
	pps := settings.MaxPacketsPerSecond
	if pps <= 0 {
		return true
	}
	if l.limiter == nil {
		l.limiter = rate.NewLimiter(rate.Limit(pps), pps)
	} else if l.limiter.Limit() != rate.Limit(pps) {
		l.limiter.SetLimitAt(now, rate.Limit(pps))
		l.limiter.SetBurstAt(now, pps)
	}
	return l.limiter.AllowN(now, 1)
}

// Reserve debits the source account, failing if that would take it below its minimum balance. The
// returned reservation must be resolved with Commit or Rollback, or it rolls back by itself at the
// transfer's deadline.
func (b *BalanceTracker) Reserve(t Transfer) (*Reservation, error) {
	now := b.clock.Now()
	if !t.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: reservation deadline already passed", ErrAlreadyExpired)
	}
	if t.SourceAmount > math.MaxInt64 || t.DestinationAmount > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d exceeds the ledger range", ErrAmountTooLarge, max(t.SourceAmount, t.DestinationAmount))
	}
	amount := int64(t.SourceAmount)

	l := b.ledger(t.Source.Id)
	l.mu.Lock()
	if !l.allow(t.Source.RateLimit, now) {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: account %s exceeded %d packets/s", ErrRateLimited, t.Source.Id, t.Source.RateLimit.MaxPacketsPerSecond)
	}
	if l.clearing < math.MinInt64+amount {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: account %s clearing balance would overflow", ErrInsufficientLiquidity, t.Source.Id)
	}
	if minBal := t.Source.Balance.MinBalance; minBal != nil && l.clearing-amount < *minBal {
		clearing := l.clearing
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: account %s has clearing %d, cannot send %d with min balance %d", ErrInsufficientLiquidity, t.Source.Id, clearing, amount, *minBal)
	}
	l.clearing -= amount
	l.inFlight += amount
	l.mu.Unlock()

	// the credit is committed later, so it is held against the destination now
	credit := int64(t.DestinationAmount)
	dst := b.ledger(t.Destination.Id)
	dst.mu.Lock()
	if dst.clearing > math.MaxInt64-credit-dst.incoming {
		dst.mu.Unlock()
		l.mu.Lock()
		l.clearing += amount
		l.inFlight -= amount
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: account %s cannot be credited %d without overflowing", ErrInsufficientLiquidity, t.Destination.Id, credit)
	}
	dst.incoming += credit
	dst.mu.Unlock()

	r := &Reservation{
		Id:       uuid.New(),
		Transfer: t,
		tracker:  b,
		expired:  make(chan struct{}),
	}
	b.inFlight.Add(1)
	perf.ReservationsPerSecond.Add(1)
	r.timer = b.clock.AfterFunc(t.ExpiresAt.Sub(now), r.expire)
	return r, nil
}

// Balance returns a snapshot of an account's ledger
func (b *BalanceTracker) Balance(acct state.AccountSettings) Balance {
	l := b.ledger(acct.Id)
	l.mu.Lock()
	defer l.mu.Unlock()
	return Balance{
		Account:         acct.Id,
		Clearing:        l.clearing,
		InFlight:        l.inFlight,
		Incoming:        l.incoming,
		MinBalance:      acct.Balance.MinBalance,
		SettleThreshold: acct.Balance.SettleThreshold,
	}
}

// Balances lists every account that has a ledger, ordered by account id
func (b *BalanceTracker) Balances() []Balance {
	res := make([]Balance, 0)
	b.ledgers.Range(func(key, value any) bool {
		l := value.(*accountLedger)
		l.mu.Lock()
		res = append(res, Balance{Account: key.(state.AccountId), Clearing: l.clearing, InFlight: l.inFlight, Incoming: l.incoming})
		l.mu.Unlock()
		return true
	})
	slices.SortFunc(res, func(a, b Balance) int {
		return cmp.Compare(a.Account, b.Account)
	})
	return res
}

// InFlight is the number of unresolved reservations
func (b *BalanceTracker) InFlight() int64 {
	return b.inFlight.Load()
}

// CheckSettlement publishes a settlement signal when the account's clearing balance has reached its
// settle threshold. It does not change the ledger.
func (b *BalanceTracker) CheckSettlement(acct state.AccountSettings) (SettlementSignal, bool) {
	threshold := acct.Balance.SettleThreshold
	if threshold == nil {
		return SettlementSignal{}, false
	}
	l := b.ledger(acct.Id)
	l.mu.Lock()
	clearing := l.clearing
	l.mu.Unlock()
	if clearing < *threshold {
		return SettlementSignal{}, false
	}
	sig := SettlementSignal{
		Account:   acct.Id,
		Amount:    clearing - acct.Balance.SettleTo,
		Direction: Outgoing,
	}
	if sig.Amount <= 0 {
		return SettlementSignal{}, false
	}
	if b.signals != nil {
		b.signals.Publish(sig)
	}
	return sig, true
}

// RecordSettlement applies a completed settlement. Outgoing settlements reduce the clearing balance,
// incoming settlements raise it.
func (b *BalanceTracker) RecordSettlement(id state.AccountId, amount int64, direction SettlementDirection) error {
	if amount < 0 {
		return fmt.Errorf("settlement amount %d must not be negative", amount)
	}
	l := b.ledger(id)
	l.mu.Lock()
	defer l.mu.Unlock()
	if direction == Outgoing {
		if l.clearing < math.MinInt64+amount {
			return fmt.Errorf("settlement of %d would overflow account %s", amount, id)
		}
		l.clearing -= amount
	} else {
		if l.clearing > math.MaxInt64-amount-l.incoming {
			return fmt.Errorf("settlement of %d would overflow account %s", amount, id)
		}
		l.clearing += amount
	}
	return nil
}

// Reset zeroes the clearing balance of an account with nothing in flight
func (b *BalanceTracker) Reset(id state.AccountId) error {
	l := b.ledger(id)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight != 0 {
		return fmt.Errorf("account %s has %d in flight", id, l.inFlight)
	}
	l.clearing = 0
	return nil
}

const (
	reservationPending int32 = iota
	reservationCommitted
	reservationRolledBack
	reservationExpired
)

// Reservation is resolved exactly once by whichever of Commit, Rollback or the deadline comes first
type Reservation struct {
	Id       uuid.UUID
	Transfer Transfer

	tracker *BalanceTracker
	status  atomic.Int32
	timer   clockwork.Timer
	expired chan struct{}
}

func (r *Reservation) resolve(to int32) bool {
	if !r.status.CompareAndSwap(reservationPending, to) {
		return false
	}
	r.tracker.inFlight.Add(-1)
	return true
}

// Commit finalizes the debit of the source account and credits the destination account
func (r *Reservation) Commit() error {
	if !r.tracker.clock.Now().Before(r.Transfer.ExpiresAt) {
		r.expire()
		return fmt.Errorf("%w: deadline of reservation %s passed", ErrReservationResolved, r.Id)
	}
	if !r.resolve(reservationCommitted) {
		return fmt.Errorf("%w: %s", ErrReservationResolved, r.Id)
	}
	r.timer.Stop()
	t := r.Transfer

	src := r.tracker.ledger(t.Source.Id)
	src.mu.Lock()
	src.inFlight -= int64(t.SourceAmount)
	src.mu.Unlock()

	dst := r.tracker.ledger(t.Destination.Id)
	dst.mu.Lock()
	credit := int64(t.DestinationAmount)
	dst.incoming -= credit
	dst.clearing += credit
	dst.mu.Unlock()
	return nil
}

// Rollback restores the debit of the source account
func (r *Reservation) Rollback() error {
	if !r.resolve(reservationRolledBack) {
		return fmt.Errorf("%w: %s", ErrReservationResolved, r.Id)
	}
	r.timer.Stop()
	r.restore()
	return nil
}

// Release rolls back the reservation if it is still pending
func (r *Reservation) Release() {
	_ = r.Rollback()
}

func (r *Reservation) expire() {
	if !r.resolve(reservationExpired) {
		return
	}
	r.restore()
	close(r.expired)
	r.tracker.log.Debug("reservation expired", "id", r.Id, "source", r.Transfer.Source.Id, "amount", r.Transfer.SourceAmount)
}

func (r *Reservation) restore() {
	t := r.Transfer
	src := r.tracker.ledger(t.Source.Id)
	src.mu.Lock()
	src.clearing += int64(t.SourceAmount)
	src.inFlight -= int64(t.SourceAmount)
	src.mu.Unlock()

	dst := r.tracker.ledger(t.Destination.Id)
	dst.mu.Lock()
	dst.incoming -= int64(t.DestinationAmount)
	dst.mu.Unlock()
}

// Expired is closed once the reservation was rolled back by its deadline
func (r *Reservation) Expired() <-chan struct{} {
	return r.expired
}

// Resolved reports whether the reservation has been committed, rolled back or expired
func (r *Reservation) Resolved() bool {
	return r.status.Load() != reservationPending
}

func (r *Reservation) Committed() bool {
	return r.status.Load() == reservationCommitted
}
