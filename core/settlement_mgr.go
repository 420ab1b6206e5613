package core

import (
	"github.com/encodeous/weft/state"
)

// SettlementMgr runs the settler against the ledger's signal bus
type SettlementMgr struct {
	*Settler
	done chan struct{}
}

func (m *SettlementMgr) Init(s *state.State) error {
	ledger := Get[*Ledger](s)
	accounts := Get[*Accounts](s)
	engine, ok := s.Aux[AuxSettlementEngine].(SettlementEngine)
	if !ok {
		engine = LogEngine{Log: s.Log.With("module", "settlement")}
	}
	m.Settler = NewSettler(ledger.BalanceTracker, accounts, engine, s.Log.With("module", "settlement"), s.Settlement.DedupWindow, s.Settlement.Concurrency)
	m.done = make(chan struct{})
	ch := m.Listen(ledger.Bus)
	go func() {
		defer close(m.done)
		m.Serve(s.Context, ledger.Bus, ch)
	}()
	return nil
}

func (m *SettlementMgr) Cleanup(s *state.State) error {
	if m.done == nil {
		return nil
	}
	<-m.done
	return nil
}
