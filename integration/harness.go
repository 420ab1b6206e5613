//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/weft/core"
	"github.com/encodeous/weft/link"
	"github.com/encodeous/weft/state"
)

// VirtualHarness runs several connectors in one process, joined by pipe links on a shared hub
type VirtualHarness struct {
	Nodes []*state.NodeCfg
	// Aux is merged into the aux map of the node with the same id
	Aux map[string]map[string]any
	Hub *link.Hub

	mu     sync.Mutex
	states map[string]*state.State
	wg     sync.WaitGroup
}

func (v *VirtualHarness) NewNode(id string, addr state.Address) *state.NodeCfg {
	cfg := &state.NodeCfg{
		Id:              id,
		OperatorAddress: addr,
		Links:           make(map[string]state.LinkCfg),
		Rates:           make(map[string]string),
	}
	v.Nodes = append(v.Nodes, cfg)
	return cfg
}

func (v *VirtualHarness) Node(id string) *state.NodeCfg {
	idx := slices.IndexFunc(v.Nodes, func(cfg *state.NodeCfg) bool {
		return cfg.Id == id
	})
	if idx == -1 {
		panic(fmt.Sprintf("no node %s", id))
	}
	return v.Nodes[idx]
}

// Connect adds a peering between two nodes: each side gets an account named after the other,
// denominated in asset, whose pipe link delivers to the other side
func (v *VirtualHarness) Connect(a, b *state.NodeCfg, asset string, scale uint8) {
	add := func(from, to *state.NodeCfg) {
		from.Accounts = append(from.Accounts, state.AccountSettings{
			Id:         state.AccountId(to.Id),
			AssetCode:  asset,
			AssetScale: scale,
			LinkType:   link.PipeType,
		})
		from.Links[to.Id] = state.LinkCfg{Options: map[string]string{
			"peer":    to.Id,
			"account": from.Id,
		}}
	}
	add(a, b)
	add(b, a)
}

// Account returns the configured account for editing, the pointer is invalidated by adding accounts
func (v *VirtualHarness) Account(node *state.NodeCfg, id state.AccountId) *state.AccountSettings {
	for i := range node.Accounts {
		if node.Accounts[i].Id == id {
			return &node.Accounts[i]
		}
	}
	return nil
}

// Start runs every node and waits until all of them are ready
func (v *VirtualHarness) Start() chan error {
	errChan := make(chan error, len(v.Nodes))
	v.Hub = link.NewHub()
	v.states = make(map[string]*state.State)
	for _, cfg := range v.Nodes {
		state.ExpandNodeConfig(cfg)
		if err := state.NodeConfigValidator(cfg); err != nil {
			errChan <- fmt.Errorf("node %s: %w", cfg.Id, err)
			return errChan
		}
	}
	ready := make(chan struct{}, len(v.Nodes))
	for _, cfg := range v.Nodes {
		aux := map[string]any{core.AuxHub: v.Hub}
		for k, val := range v.Aux[cfg.Id] {
			aux[k] = val
		}
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			labels := pprof.Labels("weft node", cfg.Id)
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				err := core.Start(*cfg, slog.LevelDebug, core.Options{
					Aux: aux,
					OnReady: func(s *state.State) {
						v.mu.Lock()
						v.states[cfg.Id] = s
						v.mu.Unlock()
						ready <- struct{}{}
					},
				})
				if err != nil {
					errChan <- err
				}
			})
		}()
	}
	for range v.Nodes {
		select {
		case <-ready:
		case err := <-errChan:
			errChan <- err
			return errChan
		case <-time.After(time.Second * 10):
			errChan <- fmt.Errorf("timed out waiting for nodes to start")
			return errChan
		}
	}
	return errChan
}

func (v *VirtualHarness) State(id string) *state.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.states[id]
}

// Send injects a packet into node as if it had arrived on account from
func (v *VirtualHarness) Send(ctx context.Context, node string, from state.AccountId, p state.Prepare) state.Response {
	return core.Get[*core.Weft](v.State(node)).HandlePrepare(ctx, from, p)
}

// Balance reads the ledger of an account on node
func (v *VirtualHarness) Balance(node string, id state.AccountId) core.Balance {
	s := v.State(node)
	acct, ok := core.Get[*core.Accounts](s).Get(id)
	if !ok {
		panic(fmt.Sprintf("%s has no account %s", node, id))
	}
	return core.Get[*core.Ledger](s).Balance(acct)
}

func (v *VirtualHarness) Stop() {
	v.mu.Lock()
	states := make([]*state.State, 0, len(v.states))
	for _, s := range v.states {
		states = append(states, s)
	}
	v.mu.Unlock()
	for _, s := range states {
		s.Cancel(fmt.Errorf("stopping harness"))
	}
	v.wg.Wait()
}
