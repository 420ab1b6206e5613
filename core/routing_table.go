package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/jonboulle/clockwork"
)

// routeSnapshot is never modified after it is published
type routeSnapshot struct {
	epoch  uint64
	routes map[state.Prefix]state.Route
}

// RouteChange records one prefix changing in a given epoch. Route is nil when the prefix was removed.
type RouteChange struct {
	Epoch  uint64
	Prefix state.Prefix
	Route  *state.Route
}

type RouteUpdate struct {
	Withdraw bool
	Route    state.Route
}

// RoutingTable is a prefix table published as immutable snapshots. Lookups never block; writers are
// serialized and each mutation publishes a new snapshot with the next epoch.
type RoutingTable struct {
	clock     clockwork.Clock
	self      state.Address
	maxEpochs int

	current atomic.Pointer[routeSnapshot]

	mu      sync.Mutex
	changes []RouteChange
}

func NewRoutingTable(clock clockwork.Clock, self state.Address, maxEpochs int) *RoutingTable {
	if maxEpochs <= 0 {
		maxEpochs = state.DefaultMaxEpochs
	}
	t := &RoutingTable{
		clock:     clock,
		self:      self,
		maxEpochs: maxEpochs,
	}
	t.current.Store(&routeSnapshot{routes: make(map[state.Prefix]state.Route)})
	return t
}

// FindBestRoute returns the longest-prefix route for destination that is unexpired and allows source
func (t *RoutingTable) FindBestRoute(destination state.Address, source state.Address) (state.Route, bool) {
	snap := t.current.Load()
	now := t.clock.Now()
	p := destination.AsPrefix()
	for {
		if r, ok := snap.routes[p]; ok && !r.Expired(now) && r.AllowsSource(source) {
			return r, true
		}
		parent, ok := p.Parent()
		if !ok {
			return state.Route{}, false
		}
		p = parent
	}
}

// InstallOrUpdate replaces any route stored under the same prefix
func (t *RoutingTable) InstallOrUpdate(route state.Route) error {
	return t.Apply([]RouteUpdate{{Route: route}})
}

// Withdraw removes a prefix, reporting whether it was present
func (t *RoutingTable) Withdraw(prefix state.Prefix) bool {
	removed := false
	t.mutate(func(routes map[state.Prefix]state.Route) []RouteChange {
		if _, ok := routes[prefix]; !ok {
			return nil
		}
		delete(routes, prefix)
		removed = true
		return []RouteChange{{Prefix: prefix}}
	})
	return removed
}

// ExpireOlderThan removes every route whose expiry is at or before when
func (t *RoutingTable) ExpireOlderThan(when time.Time) []state.Prefix {
	var expired []state.Prefix
	t.mutate(func(routes map[state.Prefix]state.Route) []RouteChange {
		var changes []RouteChange
		for prefix, r := range routes {
			if r.Expired(when) {
				delete(routes, prefix)
				expired = append(expired, prefix)
				changes = append(changes, RouteChange{Prefix: prefix})
			}
		}
		return changes
	})
	slices.Sort(expired)
	return expired
}

// Apply installs and withdraws routes as a single epoch. Either every update is applied or none are.
func (t *RoutingTable) Apply(updates []RouteUpdate) error {
	for _, u := range updates {
		if err := state.PrefixValidator(string(u.Route.Prefix)); err != nil {
			return err
		}
		if !u.Withdraw && t.self != "" && u.Route.Traversed(t.self) {
			return fmt.Errorf("%w: %s", ErrRouteLoop, u.Route.Prefix)
		}
	}
	t.mutate(func(routes map[state.Prefix]state.Route) []RouteChange {
		changes := make([]RouteChange, 0, len(updates))
		for _, u := range updates {
			if u.Withdraw {
				if _, ok := routes[u.Route.Prefix]; !ok {
					continue
				}
				delete(routes, u.Route.Prefix)
				changes = append(changes, RouteChange{Prefix: u.Route.Prefix})
				continue
			}
			r := u.Route
			r.Path = slices.Clone(r.Path)
			r.Auth = slices.Clone(r.Auth)
			routes[r.Prefix] = r
			changes = append(changes, RouteChange{Prefix: r.Prefix, Route: &r})
		}
		return changes
	})
	return nil
}

// mutate copies the current snapshot, applies fn and publishes the result if fn changed anything
func (t *RoutingTable) mutate(fn func(routes map[state.Prefix]state.Route) []RouteChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.current.Load()
	routes := maps.Clone(old.routes)
	changes := fn(routes)
	if len(changes) == 0 {
		return
	}
	next := &routeSnapshot{epoch: old.epoch + 1, routes: routes}
	for i := range changes {
		changes[i].Epoch = next.epoch
	}
	t.changes = append(t.changes, changes...)
	// keep only the changes of the last maxEpochs epochs
	cut := 0
	for cut < len(t.changes) && t.changes[cut].Epoch+uint64(t.maxEpochs) <= next.epoch {
		cut++
	}
	t.changes = slices.Clone(t.changes[cut:])
	t.current.Store(next)
}

// ChangesSince returns the changes made after epoch. When the log no longer covers epoch, full is
// true and the caller should resync from Routes.
func (t *RoutingTable) ChangesSince(epoch uint64) (changes []RouteChange, current uint64, full bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current = t.current.Load().epoch
	if epoch >= current {
		return nil, current, epoch > current
	}
	if len(t.changes) == 0 || t.changes[0].Epoch > epoch+1 {
		return nil, current, true
	}
	idx, _ := slices.BinarySearchFunc(t.changes, epoch+1, func(c RouteChange, e uint64) int {
		return cmp.Compare(c.Epoch, e)
	})
	return slices.Clone(t.changes[idx:]), current, false
}

func (t *RoutingTable) Epoch() uint64 {
	return t.current.Load().epoch
}

func (t *RoutingTable) Len() int {
	return len(t.current.Load().routes)
}

// Routes lists the routes of the current snapshot ordered by prefix
func (t *RoutingTable) Routes() []state.Route {
	snap := t.current.Load()
	routes := slices.Collect(maps.Values(snap.routes))
	slices.SortFunc(routes, func(a, b state.Route) int {
		return cmp.Compare(a.Prefix, b.Prefix)
	})
	return routes
}

func (t *RoutingTable) Get(prefix state.Prefix) (state.Route, bool) {
	r, ok := t.current.Load().routes[prefix]
	return r, ok
}
