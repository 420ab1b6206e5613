package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/encodeous/weft/perf"
	"github.com/encodeous/weft/state"
)

type RouterEvent int

// trace events

const (
	RouteInstalled RouterEvent = iota
	RouteWithdrawn
	RouteExpired
	StaticRouteAdded
)

// warn events

const (
	RouteRefused RouterEvent = iota + 1000
	FeedOverflow
)

func (e RouterEvent) String() string {
	switch e {
	case RouteInstalled:
		return "RouteInstalled"
	case RouteWithdrawn:
		return "RouteWithdrawn"
	case RouteExpired:
		return "RouteExpired"
	case StaticRouteAdded:
		return "StaticRouteAdded"
	case RouteRefused:
		return "RouteRefused"
	case FeedOverflow:
		return "FeedOverflow"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// Router owns the routing table. Locally configured routes are installed at start-up, broadcast
// routes arrive on Feed.
type Router struct {
	*state.Env
	Table *RoutingTable
	// Feed receives route updates from route broadcasts
	Feed chan RouteUpdate
}

func (r *Router) Log(event RouterEvent, desc string, args ...any) {
	if event >= RouteRefused {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	if state.DBG_log_router {
		r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	}
}

func (r *Router) Init(s *state.State) error {
	r.Env = s.Env
	r.Table = NewRoutingTable(s.Clock, s.OperatorAddress, s.Routing.MaxEpochs)
	r.Feed = make(chan RouteUpdate, 128)

	err := r.installLocalRoutes(s)
	if err != nil {
		return err
	}

	go r.consumeFeed()
	s.RepeatTask(routerSweep, s.Routing.CleanupInterval)
	return nil
}

// installLocalRoutes installs the default route, the routes to child accounts and the static routes,
// in that order, so a static route overrides an automatic one for the same prefix
func (r *Router) installLocalRoutes(s *state.State) error {
	var updates []RouteUpdate
	if s.Routing.DefaultRoute != "" {
		updates = append(updates, RouteUpdate{Route: r.localRoute(s.Routing.GlobalPrefix, s.Routing.DefaultRoute)})
	}
	for _, acct := range s.Accounts {
		if acct.Relationship == state.RelationshipChild {
			updates = append(updates, RouteUpdate{Route: r.localRoute(s.SourceAddress(acct.Id).AsPrefix(), acct.Id)})
		}
	}
	for _, sr := range s.Routing.StaticRoutes {
		route := r.localRoute(sr.Prefix, sr.NextHop)
		if sr.Source != "" {
			src, err := state.CompileSourcePattern(sr.Source)
			if err != nil {
				return err
			}
			route.Source = src
		}
		updates = append(updates, RouteUpdate{Route: route})
	}
	if err := r.Table.Apply(updates); err != nil {
		return fmt.Errorf("failed to install local routes: %w", err)
	}
	for _, u := range updates {
		r.Log(StaticRouteAdded, "local route", "route", u.Route.String())
	}
	return nil
}

// localRoute builds a non-expiring route originated by this connector
func (r *Router) localRoute(prefix state.Prefix, nextHop state.AccountId) state.Route {
	route := state.NewRoute(prefix, nextHop)
	route.Path = []state.Address{}
	route.Auth = r.routeAuth(prefix)
	return route
}

// routeAuth tags a locally originated route with the routing secret
func (r *Router) routeAuth(prefix state.Prefix) []byte {
	if r.Routing.RoutingSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(r.Routing.RoutingSecret))
	mac.Write([]byte(prefix))
	return mac.Sum(nil)
}

// Update applies a route update. Broadcast routes without an expiry get the configured route expiry.
func (r *Router) Update(u RouteUpdate) error {
	perf.RouteUpdatesPerSecond.Add(1)
	if u.Withdraw {
		if r.Table.Withdraw(u.Route.Prefix) {
			r.Log(RouteWithdrawn, "route withdrawn", "prefix", u.Route.Prefix)
		}
		return nil
	}
	route := u.Route
	if route.ExpiresAt == nil {
		exp := r.Clock.Now().Add(r.Routing.RouteExpiry)
		route.ExpiresAt = &exp
	}
	if err := r.Table.InstallOrUpdate(route); err != nil {
		r.Log(RouteRefused, "route refused", "route", route.String(), "error", err)
		return err
	}
	r.Log(RouteInstalled, "route installed", "route", route.String(), "epoch", r.Table.Epoch())
	return nil
}

// Publish queues a route update without blocking, reporting false if the feed is full
func (r *Router) Publish(u RouteUpdate) bool {
	select {
	case r.Feed <- u:
		return true
	default:
		r.Log(FeedOverflow, "route feed full, dropping update", "prefix", u.Route.Prefix)
		return false
	}
}

func (r *Router) consumeFeed() {
	for {
		select {
		case u := <-r.Feed:
			_ = r.Update(u)
		case <-r.Context.Done():
			return
		}
	}
}

func routerSweep(s *state.State) error {
	r := Get[*Router](s)
	for _, prefix := range r.Table.ExpireOlderThan(s.Clock.Now()) {
		r.Log(RouteExpired, "route expired", "prefix", prefix)
	}
	return nil
}

func (r *Router) Cleanup(s *state.State) error {
	return nil
}
