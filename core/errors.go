package core

import (
	"context"
	"errors"

	"github.com/encodeous/weft/state"
)

var (
	ErrUnreachable           = errors.New("destination unreachable")
	ErrAlreadyExpired        = errors.New("packet already expired")
	ErrInsufficientTimeout   = errors.New("insufficient timeout")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrRateLimited           = errors.New("rate limited")
	ErrAmountTooLarge        = errors.New("amount too large")
	ErrLinkFailure           = errors.New("link failure")
	ErrReservationResolved   = errors.New("reservation already resolved")
	ErrUnknownAccount        = errors.New("unknown account")
	ErrInvalidPacket         = errors.New("invalid packet")
	ErrWrongCondition        = errors.New("fulfillment does not match condition")
	ErrTransferTimedOut      = errors.New("transfer timed out")
	ErrRouteLoop             = errors.New("route already traversed this connector")
	ErrNoRate                = errors.New("no exchange rate")
)

// RejectCode maps an error from the switching pipeline to the code sent back upstream
func RejectCode(err error) state.ErrorCode {
	switch {
	case errors.Is(err, ErrUnreachable):
		return state.F02Unreachable
	case errors.Is(err, ErrInvalidPacket):
		return state.F01InvalidPacket
	case errors.Is(err, ErrAmountTooLarge):
		return state.F08AmountTooLarge
	case errors.Is(err, ErrWrongCondition):
		return state.F05WrongCondition
	case errors.Is(err, ErrAlreadyExpired), errors.Is(err, ErrInsufficientTimeout):
		return state.R02InsufficientTimeout
	case errors.Is(err, ErrTransferTimedOut), errors.Is(err, context.Canceled):
		return state.R00TransferTimedOut
	case errors.Is(err, ErrInsufficientLiquidity):
		return state.T04InsufficientLiquidity
	case errors.Is(err, ErrRateLimited):
		return state.T05RateLimited
	case errors.Is(err, ErrLinkFailure):
		return state.T01PeerUnreachable
	default:
		return state.T00InternalError
	}
}

// RejectFor converts err into a reject triggered by this connector
func RejectFor(err error, triggeredBy state.Address) *state.Reject {
	return &state.Reject{
		Code:        RejectCode(err),
		TriggeredBy: triggeredBy,
		Message:     err.Error(),
	}
}
