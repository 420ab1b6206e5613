package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestState builds a node state without a main loop. Dispatched functions run on a helper
// goroutine until the test ends.
func newTestState(t *testing.T, cfg state.NodeCfg) (*state.State, clockwork.FakeClock) {
	t.Helper()
	state.ExpandNodeConfig(&cfg)
	require.NoError(t, state.NodeConfigValidator(&cfg))
	ctx, cancel := context.WithCancelCause(context.Background())
	clock := clockwork.NewFakeClockAt(epoch0)
	s := &state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			DispatchChannel: make(chan func(*state.State) error, 16),
			NodeCfg:         cfg,
			Context:         ctx,
			Cancel:          cancel,
			Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
			Clock:           clock,
			Aux:             make(map[string]any),
		},
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case fun := <-s.DispatchChannel:
				_ = fun(s)
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel(context.Canceled)
		<-done
	})
	return s, clock
}

func initModule[T state.NyModule](t *testing.T, s *state.State, m T) T {
	t.Helper()
	name := reflect.TypeOf(m).String()
	s.Modules[name] = m
	s.ModuleOrder = append(s.ModuleOrder, name)
	require.NoError(t, m.Init(s))
	t.Cleanup(func() {
		_ = m.Cleanup(s)
	})
	return m
}

func routerCfg() state.NodeCfg {
	return state.NodeCfg{
		Id:              "conn",
		OperatorAddress: "g.conn",
		Routing: state.RoutingCfg{
			DefaultRoute:  "up",
			RoutingSecret: "s3cret",
			StaticRoutes: []state.StaticRouteCfg{
				{Prefix: "g.partner", NextHop: "bob", Source: `g\.conn\.alice`},
				{Prefix: "g.conn.alice", NextHop: "bob"},
			},
		},
		Accounts: []state.AccountSettings{
			{Id: "up", AssetCode: "USD", AssetScale: 2, Relationship: state.RelationshipParent},
			{Id: "alice", AssetCode: "USD", AssetScale: 2, Relationship: state.RelationshipChild},
			{Id: "bob", AssetCode: "USD", AssetScale: 2},
		},
	}
}

func TestRouter_LocalRoutes(t *testing.T) {
	s, _ := newTestState(t, routerCfg())
	r := initModule(t, s, &Router{})

	assert.Equal(t, uint64(1), r.Table.Epoch(), "local routes are installed in a single epoch")
	assert.Equal(t, 3, r.Table.Len())

	def, ok := r.Table.Get("g")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("up"), def.NextHop)
	assert.Nil(t, def.ExpiresAt)
	assert.Empty(t, def.Path)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("g"))
	assert.Equal(t, mac.Sum(nil), def.Auth)

	// the static route overrides the automatic child route
	child, ok := r.Table.Get("g.conn.alice")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("bob"), child.NextHop)

	nh, ok := r.Table.FindBestRoute("g.partner.x", "g.conn.alice")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("bob"), nh.NextHop)
	nh, ok = r.Table.FindBestRoute("g.partner.x", "g.conn.bob")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("up"), nh.NextHop)
}

func TestRouter_ChildRoute(t *testing.T) {
	cfg := routerCfg()
	cfg.Routing.StaticRoutes = nil
	s, _ := newTestState(t, cfg)
	r := initModule(t, s, &Router{})
	child, ok := r.Table.Get("g.conn.alice")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("alice"), child.NextHop)
}

func TestRouter_BroadcastRoutesExpire(t *testing.T) {
	s, clock := newTestState(t, routerCfg())
	r := initModule(t, s, &Router{})

	require.NoError(t, r.Update(RouteUpdate{Route: state.NewRoute("g.far", "bob")}))
	route, ok := r.Table.Get("g.far")
	require.True(t, ok)
	require.NotNil(t, route.ExpiresAt)
	assert.Equal(t, epoch0.Add(state.DefaultRouteExpiry), *route.ExpiresAt)

	clock.Advance(state.DefaultRouteExpiry)
	nh, ok := r.Table.FindBestRoute("g.far", "")
	require.True(t, ok)
	assert.Equal(t, state.AccountId("up"), nh.NextHop)

	require.NoError(t, routerSweep(s))
	_, ok = r.Table.Get("g.far")
	assert.False(t, ok)
	_, ok = r.Table.Get("g")
	assert.True(t, ok, "local routes never expire")
}

func TestRouter_Feed(t *testing.T) {
	s, _ := newTestState(t, routerCfg())
	r := initModule(t, s, &Router{})

	require.True(t, r.Publish(RouteUpdate{Route: state.NewRoute("g.feed", "bob")}))
	require.Eventually(t, func() bool {
		_, ok := r.Table.Get("g.feed")
		return ok
	}, time.Second*5, time.Millisecond*10)

	require.True(t, r.Publish(RouteUpdate{Withdraw: true, Route: state.Route{Prefix: "g.feed"}}))
	require.Eventually(t, func() bool {
		_, ok := r.Table.Get("g.feed")
		return !ok
	}, time.Second*5, time.Millisecond*10)
}

func TestRouter_RefusesLoop(t *testing.T) {
	s, _ := newTestState(t, routerCfg())
	r := initModule(t, s, &Router{})
	looped := state.NewRoute("g.loop", "bob")
	looped.Path = []state.Address{"g.other", "g.conn"}
	assert.ErrorIs(t, r.Update(RouteUpdate{Route: looped}), ErrRouteLoop)
	_, ok := r.Table.Get("g.loop")
	assert.False(t, ok)
}

func TestRouter_InvalidStaticSource(t *testing.T) {
	cfg := routerCfg()
	cfg.Routing.StaticRoutes = []state.StaticRouteCfg{{Prefix: "g.x", NextHop: "bob", Source: "("}}
	s, _ := newTestState(t, state.NodeCfg{Id: "conn", OperatorAddress: "g.conn"})
	state.ExpandNodeConfig(&cfg)
	s.NodeCfg = cfg
	assert.Error(t, (&Router{}).Init(s))
}
