package core

import (
	"errors"
	"sync"

	"github.com/encodeous/weft/link"
	"github.com/encodeous/weft/state"
)

// LinkMgr constructs and owns one link per configured account
type LinkMgr struct {
	Registry *link.Registry
	mu       sync.RWMutex
	links    map[state.AccountId]link.Link
}

func (m *LinkMgr) Init(s *state.State) error {
	m.Registry = link.NewRegistry()
	if factories, ok := s.Aux[AuxLinkFactories].(map[state.LinkType]link.Factory); ok {
		for t, f := range factories {
			m.Registry.Register(t, f)
		}
	}
	if hub, ok := s.Aux[AuxHub].(*link.Hub); ok {
		m.Registry.Register(link.PipeType, hub.Factory())
	}
	m.links = make(map[state.AccountId]link.Link)
	for _, acct := range s.NodeCfg.Accounts {
		err := m.Connect(acct, s.Links[string(acct.Id)].Options)
		if err != nil {
			return err
		}
	}
	s.Log.Debug("links ready", "count", len(m.links), "types", m.Registry.Types())
	return nil
}

// Connect constructs the link for acct, replacing and closing any previous link
func (m *LinkMgr) Connect(acct state.AccountSettings, options map[string]string) error {
	l, err := m.Registry.Construct(acct, options)
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.links[acct.Id]
	m.links[acct.Id] = l
	m.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (m *LinkMgr) Disconnect(id state.AccountId) error {
	m.mu.Lock()
	old, ok := m.links[id]
	delete(m.links, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return old.Close()
}

func (m *LinkMgr) Link(id state.AccountId) (link.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	return l, ok
}

func (m *LinkMgr) Cleanup(s *state.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, l := range m.links {
		errs = append(errs, l.Close())
	}
	clear(m.links)
	return errors.Join(errs...)
}
