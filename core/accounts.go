package core

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/jellydator/ttlcache/v3"
)

// StaticAccounts serves account settings held in memory
type StaticAccounts struct {
	mu       sync.RWMutex
	accounts map[state.AccountId]state.AccountSettings
}

func NewStaticAccounts(accounts ...state.AccountSettings) *StaticAccounts {
	s := &StaticAccounts{accounts: make(map[state.AccountId]state.AccountSettings, len(accounts))}
	for _, acct := range accounts {
		s.accounts[acct.Id] = acct
	}
	return s
}

func (s *StaticAccounts) Get(id state.AccountId) (state.AccountSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	return acct, ok
}

// Put adds or replaces an account
func (s *StaticAccounts) Put(acct state.AccountSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.Id] = acct
}

func (s *StaticAccounts) Remove(id state.AccountId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
}

func (s *StaticAccounts) All() []state.AccountSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]state.AccountSettings, 0, len(s.accounts))
	for _, acct := range s.accounts {
		all = append(all, acct)
	}
	slices.SortFunc(all, func(a, b state.AccountSettings) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return all
}

// CachedAccounts is a loading cache in front of a slower account provider. Misses are not cached.
type CachedAccounts struct {
	source state.AccountProvider
	cache  *ttlcache.Cache[state.AccountId, state.AccountSettings]
}

func NewCachedAccounts(source state.AccountProvider, ttl time.Duration) *CachedAccounts {
	return &CachedAccounts{
		source: source,
		cache: ttlcache.New[state.AccountId, state.AccountSettings](
			ttlcache.WithTTL[state.AccountId, state.AccountSettings](ttl),
			ttlcache.WithDisableTouchOnHit[state.AccountId, state.AccountSettings](),
		),
	}
}

func (c *CachedAccounts) Get(id state.AccountId) (state.AccountSettings, bool) {
	if item := c.cache.Get(id); item != nil && !item.IsExpired() {
		return item.Value(), true
	}
	acct, ok := c.source.Get(id)
	if !ok {
		return state.AccountSettings{}, false
	}
	c.cache.Set(id, acct, ttlcache.DefaultTTL)
	return acct, true
}

// Invalidate forces the next lookup of id to reach the source
func (c *CachedAccounts) Invalidate(id state.AccountId) {
	c.cache.Delete(id)
}

func (c *CachedAccounts) Purge() {
	c.cache.DeleteExpired()
}

// Accounts serves account settings to the rest of the node. Settings come from the node config
// unless an AccountProvider is supplied through AuxAccounts.
type Accounts struct {
	state.AccountProvider
	Static *StaticAccounts
	cache  *CachedAccounts
}

func (a *Accounts) Init(s *state.State) error {
	a.Static = NewStaticAccounts(s.NodeCfg.Accounts...)
	var source state.AccountProvider = a.Static
	if ext, ok := s.Aux[AuxAccounts].(state.AccountProvider); ok {
		source = ext
	}
	a.cache = NewCachedAccounts(source, s.AccountCacheTTL)
	a.AccountProvider = a.cache
	s.RepeatTask(accountsGc, state.BalanceGcDelay)
	return nil
}

// Invalidate forces the next lookup of id to reach the account source
func (a *Accounts) Invalidate(id state.AccountId) {
	a.cache.Invalidate(id)
}

func accountsGc(s *state.State) error {
	Get[*Accounts](s).cache.Purge()
	return nil
}

func (a *Accounts) Cleanup(s *state.State) error {
	return nil
}
