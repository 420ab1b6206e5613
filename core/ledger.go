package core

import (
	"github.com/encodeous/weft/state"
)

// Ledger owns the balance tracker and the settlement signal bus
type Ledger struct {
	*BalanceTracker
	Bus *SignalBus
}

func (l *Ledger) Init(s *state.State) error {
	l.Bus = NewSignalBus(state.SettlementSignalBuffer)
	l.BalanceTracker = NewBalanceTracker(s.Clock, s.Log.With("module", "ledger"), l.Bus)
	return nil
}

func (l *Ledger) Cleanup(s *state.State) error {
	return l.Bus.Close()
}
