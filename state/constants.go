package state

import "time"

var (
	DefaultMinMessageWindow      = time.Second
	DefaultMaxHoldTime           = time.Second * 30
	DefaultRouteExpiry           = time.Second * 45
	DefaultRouteCleanupInterval  = time.Second
	DefaultMaxEpochs             = 50
	DefaultSettlementDedupWindow = time.Second * 5
	DefaultSettlementConcurrency = 4
	DefaultAccountCacheTTL       = time.Second * 15
	DefaultLinkType              = LinkType("loopback")

	// SettlementSignalBuffer is the capacity of the settlement broadcaster
	SettlementSignalBuffer = 1024
	// SlowDispatchThreshold logs dispatched tasks that hog the main loop
	SlowDispatchThreshold = time.Millisecond * 4
	// BalanceGcDelay is the interval at which idle caches are purged
	BalanceGcDelay = time.Second * 10

	MaxAccountIdLength = 64
)

var (
	DBG_debug       = false // serve pprof and metrics on DebugAddr
	DBG_trace       = false // write a runtime trace to trace.out
	DBG_log_router  = false
	DBG_log_packets = false
	DebugAddr       = "127.0.0.1:6060"

	NodeConfigPath = "weft.yaml"
)
