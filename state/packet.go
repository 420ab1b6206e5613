package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"time"
)

type Condition [32]byte
type Fulfillment [32]byte

func (c Condition) String() string {
	return hex.EncodeToString(c[:])
}

// ConditionOf returns the execution condition that the fulfillment satisfies.
func ConditionOf(f Fulfillment) Condition {
	return sha256.Sum256(f[:])
}

// Prepare is an ILP prepare packet. Packets are handled by value and never mutated; the
// next-hop packet is derived with Derive.
type Prepare struct {
	Destination Address
	Amount      uint64
	ExpiresAt   time.Time
	Condition   Condition
	Data        []byte
	// HopLimit is decremented by every connector that forwards the packet and the packet is dropped
	// once it would reach zero, 0 disables the check.
	HopLimit uint8
}

// Derive returns a copy of the packet with a new amount and expiry. Data is cloned so the
// derived packet shares no memory with p.
func (p Prepare) Derive(amount uint64, expiresAt time.Time) Prepare {
	next := p
	next.Amount = amount
	next.ExpiresAt = expiresAt
	next.Data = slices.Clone(p.Data)
	return next
}

func (p Prepare) String() string {
	return fmt.Sprintf("(dst: %s, amt: %d, exp: %s, cond: %s)", p.Destination, p.Amount, p.ExpiresAt.UTC().Format(time.RFC3339Nano), p.Condition.String()[:8])
}

// Response is either a *Fulfill or a *Reject.
type Response interface {
	isResponse()
}

type Fulfill struct {
	Fulfillment Fulfillment
	Data        []byte
}

func (*Fulfill) isResponse() {}

// Fulfills reports whether the fulfillment is the preimage of cond.
func (f *Fulfill) Fulfills(cond Condition) bool {
	return ConditionOf(f.Fulfillment) == cond
}

type Reject struct {
	Code        ErrorCode
	TriggeredBy Address
	Message     string
	Data        []byte
}

func (*Reject) isResponse() {}

func (r *Reject) Error() string {
	return fmt.Sprintf("%s by %s: %s", r.Code, r.TriggeredBy, r.Message)
}

func (r *Reject) String() string {
	return r.Error()
}

// ErrorCode is the three character ILP error code carried in reject packets.
type ErrorCode string

const (
	F00BadRequest            ErrorCode = "F00"
	F01InvalidPacket         ErrorCode = "F01"
	F02Unreachable           ErrorCode = "F02"
	F05WrongCondition        ErrorCode = "F05"
	F06UnexpectedPayment     ErrorCode = "F06"
	F08AmountTooLarge        ErrorCode = "F08"
	T00InternalError         ErrorCode = "T00"
	T01PeerUnreachable       ErrorCode = "T01"
	T04InsufficientLiquidity ErrorCode = "T04"
	T05RateLimited           ErrorCode = "T05"
	R00TransferTimedOut      ErrorCode = "R00"
	R02InsufficientTimeout   ErrorCode = "R02"
)

var errorCodeNames = map[ErrorCode]string{
	F00BadRequest:            "BAD_REQUEST",
	F01InvalidPacket:         "INVALID_PACKET",
	F02Unreachable:           "UNREACHABLE",
	F05WrongCondition:        "WRONG_CONDITION",
	F06UnexpectedPayment:     "UNEXPECTED_PAYMENT",
	F08AmountTooLarge:        "AMOUNT_TOO_LARGE",
	T00InternalError:         "INTERNAL_ERROR",
	T01PeerUnreachable:       "PEER_UNREACHABLE",
	T04InsufficientLiquidity: "INSUFFICIENT_LIQUIDITY",
	T05RateLimited:           "RATE_LIMITED",
	R00TransferTimedOut:      "TRANSFER_TIMED_OUT",
	R02InsufficientTimeout:   "INSUFFICIENT_TIMEOUT",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return string(c) + "_" + name
	}
	return string(c)
}

// Final reports whether the code belongs to the F (final) family.
func (c ErrorCode) Final() bool {
	return len(c) > 0 && c[0] == 'F'
}
