package state

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type StaticRouteCfg struct {
	Prefix  Prefix    `yaml:"prefix"`
	NextHop AccountId `yaml:"next_hop"`
	// Source restricts which senders may use this route, empty allows every sender
	Source string `yaml:"source,omitempty"`
}

type RoutingCfg struct {
	RouteExpiry     time.Duration    `yaml:"route_expiry,omitempty"`     // lifetime of a broadcast route that carries no expiry of its own
	CleanupInterval time.Duration    `yaml:"cleanup_interval,omitempty"` // how often expired routes are swept
	MaxEpochs       int              `yaml:"max_epochs,omitempty"`       // number of table epochs kept for incremental sync
	RoutingSecret   string           `yaml:"routing_secret,omitempty"`   // keys the auth tag of locally originated routes
	DefaultRoute    AccountId        `yaml:"default_route,omitempty"`    // next hop for everything under the global prefix
	GlobalPrefix    Prefix           `yaml:"global_prefix,omitempty"`
	StaticRoutes    []StaticRouteCfg `yaml:"static_routes,omitempty"`
}

type SettlementCfg struct {
	DedupWindow time.Duration `yaml:"dedup_window,omitempty"` // suppresses repeated settlement signals for an account
	Concurrency int           `yaml:"concurrency,omitempty"`  // maximum in-flight settlement engine calls
}

// NodeCfg represents the node-level connector configuration
type NodeCfg struct {
	Id               string             `yaml:"id"`               // short name, used as the log prefix
	OperatorAddress  Address            `yaml:"operator_address"` // this connector's ILP address
	MinMessageWindow time.Duration      `yaml:"min_message_window,omitempty"`
	MaxHoldTime      time.Duration      `yaml:"max_hold_time,omitempty"`
	Routing          RoutingCfg         `yaml:"routing,omitempty"`
	Settlement       SettlementCfg      `yaml:"settlement,omitempty"`
	Accounts         []AccountSettings  `yaml:"accounts"`
	Rates            map[string]string  `yaml:"rates,omitempty"`      // "SRC/DST": "1.25", value of one SRC unit in DST
	AccountCacheTTL  time.Duration      `yaml:"account_cache_ttl,omitempty"`
	LogPath          string             `yaml:"log_path,omitempty"`   // if not empty, weft will also log to this file
	IpcSocket        string             `yaml:"ipc_socket,omitempty"` // unix socket serving inspect requests
	Links            map[string]LinkCfg `yaml:"links,omitempty"`      // per-account link options, keyed by account id
}

// LinkCfg carries free-form options for a link constructor
type LinkCfg struct {
	Options map[string]string `yaml:"options,omitempty"`
}

func (c *NodeCfg) GetAccount(id AccountId) (AccountSettings, bool) {
	for _, acct := range c.Accounts {
		if acct.Id == id {
			return acct, true
		}
	}
	return AccountSettings{}, false
}

// ExpandNodeConfig fills unset fields with defaults
func ExpandNodeConfig(cfg *NodeCfg) {
	if cfg.Id == "" {
		cfg.Id = string(cfg.OperatorAddress)
	}
	if cfg.MinMessageWindow == 0 {
		cfg.MinMessageWindow = DefaultMinMessageWindow
	}
	if cfg.MaxHoldTime == 0 {
		cfg.MaxHoldTime = DefaultMaxHoldTime
	}
	if cfg.Routing.RouteExpiry == 0 {
		cfg.Routing.RouteExpiry = DefaultRouteExpiry
	}
	if cfg.Routing.CleanupInterval == 0 {
		cfg.Routing.CleanupInterval = DefaultRouteCleanupInterval
	}
	if cfg.Routing.MaxEpochs == 0 {
		cfg.Routing.MaxEpochs = DefaultMaxEpochs
	}
	if cfg.Routing.GlobalPrefix == "" && cfg.OperatorAddress != "" {
		cfg.Routing.GlobalPrefix = Prefix(cfg.OperatorAddress.Scheme())
	}
	if cfg.Settlement.DedupWindow == 0 {
		cfg.Settlement.DedupWindow = DefaultSettlementDedupWindow
	}
	if cfg.Settlement.Concurrency == 0 {
		cfg.Settlement.Concurrency = DefaultSettlementConcurrency
	}
	if cfg.AccountCacheTTL == 0 {
		cfg.AccountCacheTTL = DefaultAccountCacheTTL
	}
	for i, acct := range cfg.Accounts {
		if acct.Relationship == "" {
			acct.Relationship = RelationshipPeer
		}
		if acct.LinkType == "" {
			acct.LinkType = DefaultLinkType
		}
		cfg.Accounts[i] = acct
	}
}

func ReadNodeConfig(path string) (*NodeCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg NodeCfg
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}
