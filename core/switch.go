package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/encodeous/weft/link"
	"github.com/encodeous/weft/perf"
	"github.com/encodeous/weft/state"
	"github.com/jonboulle/clockwork"
)

// LinkProvider returns the link that reaches the peer behind an account
type LinkProvider interface {
	Link(id state.AccountId) (link.Link, bool)
}

type Stage int

const (
	StageReceived Stage = iota
	StageRouted
	StageReserved
	StageForwarded
	StageFulfilled
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "RECEIVED"
	case StageRouted:
		return "ROUTED"
	case StageReserved:
		return "RESERVED"
	case StageForwarded:
		return "FORWARDED"
	case StageFulfilled:
		return "FULFILLED"
	case StageRejected:
		return "REJECTED"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// packetFlow tracks the stage of one packet. Stages only move forward.
type packetFlow struct {
	stage Stage
	log   *slog.Logger
}

func (f *packetFlow) advance(to Stage) {
	if to <= f.stage || f.stage >= StageFulfilled {
		panic(fmt.Sprintf("invalid packet transition %s -> %s", f.stage, to))
	}
	f.log.Debug("packet " + to.String())
	f.stage = to
}

// PacketSwitch forwards prepare packets between accounts
type PacketSwitch struct {
	Self     state.Address
	Accounts state.AccountProvider
	Resolver *NextHopResolver
	Tracker  *BalanceTracker
	Links    LinkProvider
	Clock    clockwork.Clock
	Log      *slog.Logger
	// OnResolved, if set, is called with the final stage of every packet
	OnResolved func(from state.AccountId, p state.Prepare, stage Stage, res state.Response)
}

type sendResult struct {
	res state.Response
	err error
}

// HandlePrepare runs a packet received on account from through the switch and returns the response
// for the previous hop. It never returns nil.
func (s *PacketSwitch) HandlePrepare(ctx context.Context, from state.AccountId, p state.Prepare) state.Response {
	start := s.Clock.Now()
	flow := &packetFlow{stage: StageReceived, log: s.Log.With("from", from, "dst", p.Destination, "amt", p.Amount)}
	res := s.handle(ctx, flow, from, p)
	if _, ok := res.(*state.Fulfill); ok {
		flow.advance(StageFulfilled)
		perf.FulfilledPerSecond.Add(1)
	} else {
		flow.advance(StageRejected)
		perf.RejectedPerSecond.Add(1)
	}
	perf.SwitchLatency.Add(float64(s.Clock.Since(start).Microseconds()))
	if s.OnResolved != nil {
		s.OnResolved(from, p, flow.stage, res)
	}
	return res
}

func (s *PacketSwitch) reject(flow *packetFlow, err error) *state.Reject {
	rj := RejectFor(err, s.Self)
	flow.log.Debug("rejecting packet", "stage", flow.stage.String(), "code", rj.Code.String(), "error", err)
	return rj
}

func (s *PacketSwitch) handle(ctx context.Context, flow *packetFlow, from state.AccountId, p state.Prepare) state.Response {
	perf.ReceivedPerSecond.Add(1)
	source, ok := s.Accounts.Get(from)
	if !ok {
		return s.reject(flow, fmt.Errorf("%w: packet received on %s", ErrUnknownAccount, from))
	}
	if err := state.AddressValidator(string(p.Destination)); err != nil {
		return s.reject(flow, fmt.Errorf("%w: %w", ErrInvalidPacket, err))
	}
	if limit := source.MaxPacketAmount; limit != nil && p.Amount > *limit {
		return s.reject(flow, fmt.Errorf("%w: %d exceeds the maximum of %d for %s", ErrAmountTooLarge, p.Amount, *limit, from))
	}

	nh, err := s.Resolver.Resolve(source, p)
	if err != nil {
		return s.reject(flow, err)
	}
	flow.advance(StageRouted)

	reservation, err := s.Tracker.Reserve(Transfer{
		Source:            source,
		Destination:       nh.Account,
		SourceAmount:      p.Amount,
		DestinationAmount: nh.Packet.Amount,
		ExpiresAt:         nh.Packet.ExpiresAt,
	})
	if err != nil {
		return s.reject(flow, err)
	}
	defer reservation.Release()
	flow.advance(StageReserved)

	l, ok := s.Links.Link(nh.Account.Id)
	if !ok {
		return s.reject(flow, fmt.Errorf("%w: no link for account %s", ErrLinkFailure, nh.Account.Id))
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- sendResult{err: fmt.Errorf("link panic: %v", r)}
			}
		}()
		res, err := l.SendPacket(fctx, nh.Packet)
		done <- sendResult{res, err}
	}()
	flow.advance(StageForwarded)

	var result sendResult
	select {
	case result = <-done:
	case <-reservation.Expired():
		return s.reject(flow, fmt.Errorf("%w: no response from %s before %s", ErrInsufficientTimeout, nh.Account.Id, nh.Packet.ExpiresAt))
	case <-ctx.Done():
		return s.reject(flow, fmt.Errorf("%w: %w", ErrTransferTimedOut, context.Cause(ctx)))
	}

	if result.err != nil {
		if errors.Is(result.err, context.Canceled) && ctx.Err() != nil {
			return s.reject(flow, fmt.Errorf("%w: %w", ErrTransferTimedOut, result.err))
		}
		return s.reject(flow, fmt.Errorf("%w: %s: %w", ErrLinkFailure, nh.Account.Id, result.err))
	}

	switch res := result.res.(type) {
	case *state.Fulfill:
		if res == nil {
			return s.reject(flow, fmt.Errorf("%w: %s returned a nil fulfill", ErrLinkFailure, nh.Account.Id))
		}
		if !res.Fulfills(p.Condition) {
			if err := reservation.Rollback(); err != nil {
				return s.reject(flow, fmt.Errorf("%w: %w", ErrInsufficientTimeout, err))
			}
			return s.reject(flow, fmt.Errorf("%w: from %s", ErrWrongCondition, nh.Account.Id))
		}
		if err := reservation.Commit(); err != nil {
			return s.reject(flow, fmt.Errorf("%w: %w", ErrInsufficientTimeout, err))
		}
		s.Tracker.CheckSettlement(nh.Account)
		return &state.Fulfill{Fulfillment: res.Fulfillment, Data: slices.Clone(res.Data)}
	case *state.Reject:
		if res == nil {
			return s.reject(flow, fmt.Errorf("%w: %s returned a nil reject", ErrLinkFailure, nh.Account.Id))
		}
		_ = reservation.Rollback()
		flow.log.Debug("next hop rejected", "code", res.Code.String(), "by", res.TriggeredBy)
		return &state.Reject{Code: res.Code, TriggeredBy: res.TriggeredBy, Message: res.Message, Data: slices.Clone(res.Data)}
	default:
		return s.reject(flow, fmt.Errorf("%w: %s returned no response", ErrLinkFailure, nh.Account.Id))
	}
}
