package state

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	Modules map[string]NyModule
	// ModuleOrder lists module names in initialization order
	ModuleOrder []string
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan func(s *State) error
	NodeCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Clock    clockwork.Clock
	Started  atomic.Bool
	Stopping atomic.Bool
	// Aux carries in-process collaborators (settlement engine, rate source, link factories) supplied by the embedder
	Aux map[string]any
}

// SourceAddress is the address packets from the given local account are attributed to
func (e *Env) SourceAddress(id AccountId) Address {
	return e.OperatorAddress.With(string(id))
}
