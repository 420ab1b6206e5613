package link

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/encodeous/weft/state"
)

var ErrUnknownLinkType = errors.New("unknown link type")

// Link carries prepare packets to the peer behind an account. SendPacket blocks until the peer
// responds or ctx is done. An error means the packet could not be delivered; rejects from the
// peer are returned as a *state.Reject response.
type Link interface {
	SendPacket(ctx context.Context, p state.Prepare) (state.Response, error)
	Close() error
}

// Handler accepts packets arriving on a local account
type Handler interface {
	HandlePrepare(ctx context.Context, from state.AccountId, p state.Prepare) state.Response
}

type HandlerFunc func(ctx context.Context, from state.AccountId, p state.Prepare) state.Response

func (f HandlerFunc) HandlePrepare(ctx context.Context, from state.AccountId, p state.Prepare) state.Response {
	return f(ctx, from, p)
}

// Func adapts a function to a Link that needs no cleanup
type Func func(ctx context.Context, p state.Prepare) (state.Response, error)

func (f Func) SendPacket(ctx context.Context, p state.Prepare) (state.Response, error) {
	return f(ctx, p)
}

func (f Func) Close() error {
	return nil
}

// Factory constructs the link for an account. options come from the node config's links section.
type Factory func(acct state.AccountSettings, options map[string]string) (Link, error)

// Registry maps link type names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[state.LinkType]Factory
}

// NewRegistry returns a registry holding the built-in link types
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[state.LinkType]Factory)}
	r.Register(LoopbackType, NewLoopback)
	r.Register(PingType, NewPing)
	r.Register(RejectType, NewReject)
	return r
}

// Register adds or replaces the factory for a link type
func (r *Registry) Register(t state.LinkType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

func (r *Registry) Types() []state.LinkType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

func (r *Registry) Construct(acct state.AccountSettings, options map[string]string) (Link, error) {
	r.mu.RLock()
	f, ok := r.factories[acct.LinkType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q for account %s", ErrUnknownLinkType, acct.LinkType, acct.Id)
	}
	l, err := f(acct, options)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s link for account %s: %w", acct.LinkType, acct.Id, err)
	}
	return l, nil
}
