package link

import (
	"context"
	"fmt"

	"github.com/encodeous/weft/state"
)

const (
	LoopbackType state.LinkType = "loopback"
	PingType     state.LinkType = "ping"
	RejectType   state.LinkType = "reject"
	PipeType     state.LinkType = "pipe"
)

var (
	// LoopbackFulfillment is returned by loopback links for every packet
	LoopbackFulfillment state.Fulfillment
	// PingFulfillment is the well-known preimage of ping packets
	PingFulfillment   = pingFulfillment()
	PingCondition     = state.ConditionOf(PingFulfillment)
	LoopbackCondition = state.ConditionOf(LoopbackFulfillment)
)

func pingFulfillment() (f state.Fulfillment) {
	copy(f[:], "pingpingpingpingpingpingpingping")
	return f
}

// NewLoopback fulfills every packet with the zero preimage
func NewLoopback(acct state.AccountSettings, options map[string]string) (Link, error) {
	return Func(func(ctx context.Context, p state.Prepare) (state.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &state.Fulfill{Fulfillment: LoopbackFulfillment}, nil
	}), nil
}

// NewPing fulfills packets locked to the ping condition and rejects everything else
func NewPing(acct state.AccountSettings, options map[string]string) (Link, error) {
	return Func(func(ctx context.Context, p state.Prepare) (state.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Condition != PingCondition {
			return &state.Reject{
				Code:        state.F06UnexpectedPayment,
				TriggeredBy: p.Destination,
				Message:     "not a ping packet",
			}, nil
		}
		return &state.Fulfill{Fulfillment: PingFulfillment}, nil
	}), nil
}

// NewReject rejects every packet. Options: code (default F02), message, triggered_by.
func NewReject(acct state.AccountSettings, options map[string]string) (Link, error) {
	code := state.F02Unreachable
	if c, ok := options["code"]; ok {
		if len(c) != 3 {
			return nil, fmt.Errorf("invalid reject code %q", c)
		}
		code = state.ErrorCode(c)
	}
	message := options["message"]
	triggeredBy := state.Address(options["triggered_by"])
	return Func(func(ctx context.Context, p state.Prepare) (state.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		by := triggeredBy
		if by == "" {
			by = p.Destination
		}
		return &state.Reject{Code: code, TriggeredBy: by, Message: message}, nil
	}), nil
}
