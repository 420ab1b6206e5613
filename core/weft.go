package core

import (
	"github.com/encodeous/weft/link"
	"github.com/encodeous/weft/state"
)

// Keys of state.Env.Aux understood by the modules
const (
	AuxAccounts         = "accounts"          // state.AccountProvider replacing the configured accounts
	AuxExchangeRates    = "exchange_rates"    // ExchangeRates replacing the configured rate sheet
	AuxSettlementEngine = "settlement_engine" // SettlementEngine, defaults to LogEngine
	AuxLinkFactories    = "link_factories"    // map[state.LinkType]link.Factory registered next to the built-ins
	AuxHub              = "hub"               // *link.Hub enabling the pipe link type
)

// Weft is the packet switch of the node
type Weft struct {
	*PacketSwitch
	Rates ExchangeRates
}

func (w *Weft) Init(s *state.State) error {
	s.Log.Debug("init weft")
	rates, ok := s.Aux[AuxExchangeRates].(ExchangeRates)
	if ok {
		rates = NewCachedRates(rates, s.AccountCacheTTL)
	} else {
		static, err := NewStaticRates(s.Rates)
		if err != nil {
			return err
		}
		rates = static
	}
	w.Rates = rates

	accounts := Get[*Accounts](s)
	log := s.Log.With("module", "switch")
	w.PacketSwitch = &PacketSwitch{
		Self:     s.OperatorAddress,
		Accounts: accounts,
		Resolver: &NextHopResolver{
			Self:      s.OperatorAddress,
			Table:     Get[*Router](s).Table,
			Accounts:  accounts,
			Converter: &AmountConverter{Rates: rates, Log: log},
			Expiry: ExpiryPlanner{
				MinMessageWindow: s.MinMessageWindow,
				MaxHoldTime:      s.MaxHoldTime,
			},
			Clock: s.Clock,
			Log:   log,
		},
		Tracker: Get[*Ledger](s).BalanceTracker,
		Links:   Get[*LinkMgr](s),
		Clock:   s.Clock,
		Log:     log,
	}
	if state.DBG_log_packets {
		w.OnResolved = func(from state.AccountId, p state.Prepare, stage Stage, res state.Response) {
			log.Info("packet", "from", from, "packet", p.String(), "stage", stage.String(), "response", res)
		}
	}
	if hub, ok := s.Aux[AuxHub].(*link.Hub); ok {
		hub.Attach(s.Id, w.PacketSwitch)
	}
	return nil
}

func (w *Weft) Cleanup(s *state.State) error {
	if hub, ok := s.Aux[AuxHub].(*link.Hub); ok {
		hub.Detach(s.Id)
	}
	return nil
}
