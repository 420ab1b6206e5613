package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/encodeous/weft/state"
)

// Hub connects connectors running in the same process. Each connector attaches its packet
// handler under a name; pipe links deliver packets straight to the named handler.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHub() *Hub {
	return &Hub{handlers: make(map[string]Handler)}
}

func (h *Hub) Attach(name string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = handler
}

func (h *Hub) Detach(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, name)
}

func (h *Hub) lookup(name string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[name]
	return handler, ok
}

// Factory returns a link factory for the pipe type. Options: peer (required, the hub name of the
// remote connector), account (the account the packet arrives on at the peer, defaults to the local
// account id).
func (h *Hub) Factory() Factory {
	return func(acct state.AccountSettings, options map[string]string) (Link, error) {
		peer, ok := options["peer"]
		if !ok || peer == "" {
			return nil, fmt.Errorf("pipe link for %s is missing the peer option", acct.Id)
		}
		remote := state.AccountId(options["account"])
		if remote == "" {
			remote = acct.Id
		}
		return &Pipe{hub: h, peer: peer, from: remote}, nil
	}
}

// Pipe delivers packets to a handler attached to a Hub. The peer is resolved on every send so
// connectors may attach in any order.
type Pipe struct {
	hub  *Hub
	peer string
	from state.AccountId
}

func (p *Pipe) SendPacket(ctx context.Context, pkt state.Prepare) (state.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handler, ok := p.hub.lookup(p.peer)
	if !ok {
		return nil, fmt.Errorf("peer %s is not attached", p.peer)
	}
	return handler.HandlePrepare(ctx, p.from, pkt), nil
}

func (p *Pipe) Close() error {
	return nil
}
