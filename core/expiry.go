package core

import (
	"fmt"
	"time"
)

// ExpiryPlanner decides how long the next hop has to respond
type ExpiryPlanner struct {
	// MinMessageWindow is the time reserved for a response to travel back to the previous hop
	MinMessageWindow time.Duration
	// MaxHoldTime caps how long this connector will hold a packet
	MaxHoldTime time.Duration
}

// DestinationExpiry computes the expiry of the outgoing packet. Packets that stay on this node keep
// their source expiry.
func (e ExpiryPlanner) DestinationExpiry(now, sourceExpiry time.Time, external bool) (time.Time, error) {
	return ComputeDestinationExpiry(now, sourceExpiry, external, e.MinMessageWindow, e.MaxHoldTime)
}

func ComputeDestinationExpiry(now, sourceExpiry time.Time, external bool, minMessageWindow, maxHoldTime time.Duration) (time.Time, error) {
	if !external {
		return sourceExpiry, nil
	}
	if !sourceExpiry.After(now) {
		return time.Time{}, fmt.Errorf("%w: expired %s ago", ErrAlreadyExpired, now.Sub(sourceExpiry))
	}
	candidate := sourceExpiry.Add(-minMessageWindow)
	if capped := now.Add(maxHoldTime); capped.Before(candidate) {
		candidate = capped
	}
	if !candidate.Add(-minMessageWindow).After(now) {
		return time.Time{}, fmt.Errorf("%w: source expires in %s, need more than %s", ErrInsufficientTimeout, sourceExpiry.Sub(now), 2*minMessageWindow)
	}
	return candidate, nil
}
