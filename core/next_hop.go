package core

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/encodeous/weft/state"
	"github.com/jonboulle/clockwork"
)

// NextHop is the outcome of routing a packet: the account to forward on and the packet to send it
type NextHop struct {
	Account state.AccountSettings
	Route   state.Route
	Packet  state.Prepare
}

type NextHopResolver struct {
	Self      state.Address
	Table     *RoutingTable
	Accounts  state.AccountProvider
	Converter *AmountConverter
	Expiry    ExpiryPlanner
	Clock     clockwork.Clock
	Log       *slog.Logger
}

// Resolve picks the next hop for a packet received from source and derives the outgoing packet
func (r *NextHopResolver) Resolve(source state.AccountSettings, p state.Prepare) (NextHop, error) {
	srcAddr := r.Self.With(string(source.Id))
	route, ok := r.Table.FindBestRoute(p.Destination, srcAddr)
	if !ok {
		return NextHop{}, fmt.Errorf("%w: no route to %s for %s", ErrUnreachable, p.Destination, srcAddr)
	}
	if route.NextHop == source.Id {
		return NextHop{}, fmt.Errorf("%w: route to %s points back to source account %s", ErrUnreachable, p.Destination, source.Id)
	}
	dest, ok := r.Accounts.Get(route.NextHop)
	if !ok {
		return NextHop{}, fmt.Errorf("%w: next hop account %s for %s is not configured", ErrUnreachable, route.NextHop, p.Destination)
	}

	amount, err := r.Converter.Convert(p.Amount, source.Denomination(), dest.Denomination())
	if err != nil {
		return NextHop{}, err
	}

	expiry, err := r.Expiry.DestinationExpiry(r.Clock.Now(), p.ExpiresAt, r.isExternal(p.Destination, dest))
	if err != nil {
		return NextHop{}, err
	}

	next := p.Derive(amount, expiry)
	if p.HopLimit != 0 {
		if p.HopLimit == 1 {
			return NextHop{}, fmt.Errorf("%w: hop limit exhausted for %s", ErrUnreachable, p.Destination)
		}
		next.HopLimit = p.HopLimit - 1
	}
	return NextHop{Account: dest, Route: route, Packet: next}, nil
}

// isExternal reports whether the packet leaves this node
func (r *NextHopResolver) isExternal(destination state.Address, nextHop state.AccountSettings) bool {
	if nextHop.Internal {
		return false
	}
	if destination == r.Self || strings.HasPrefix(string(destination), "self.") {
		return false
	}
	return true
}
