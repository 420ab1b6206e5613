package state

import "fmt"

type AccountId string

type Relationship string

const (
	RelationshipPeer   Relationship = "peer"
	RelationshipParent Relationship = "parent"
	RelationshipChild  Relationship = "child"
)

// LinkType names a link constructor in the link registry
type LinkType string

// Denomination is the pair (asset code, asset scale) that an account's amounts are expressed in.
type Denomination struct {
	Code  string
	Scale uint8
}

func (d Denomination) String() string {
	return fmt.Sprintf("%s@%d", d.Code, d.Scale)
}

type BalanceSettings struct {
	// MinBalance is the lowest clearing balance the account may reach. nil means unlimited credit.
	MinBalance *int64 `yaml:"min_balance,omitempty"`
	// SettleThreshold triggers a settlement once the clearing balance reaches it. nil disables settlement.
	SettleThreshold *int64 `yaml:"settle_threshold,omitempty"`
	// SettleTo is the clearing balance a settlement brings the account back to.
	SettleTo int64 `yaml:"settle_to,omitempty"`
}

type RateLimitSettings struct {
	MaxPacketsPerSecond int `yaml:"max_packets_per_second,omitempty"`
}

type SettlementSettings struct {
	// EngineScale is the scale the settlement engine works in; nil means the account's own scale.
	EngineScale *uint8 `yaml:"engine_scale,omitempty"`
}

// AccountSettings is owned by account configuration and read-only to the switching core.
type AccountSettings struct {
	Id              AccountId          `yaml:"id"`
	Description     string             `yaml:"description,omitempty"`
	AssetCode       string             `yaml:"asset_code"`
	AssetScale      uint8              `yaml:"asset_scale"`
	Relationship    Relationship       `yaml:"relationship,omitempty"`
	LinkType        LinkType           `yaml:"link_type,omitempty"`
	Internal        bool               `yaml:"internal,omitempty"` // packets to this account never leave the node
	MaxPacketAmount *uint64            `yaml:"max_packet_amount,omitempty"`
	Balance         BalanceSettings    `yaml:"balance,omitempty"`
	RateLimit       RateLimitSettings  `yaml:"rate_limit,omitempty"`
	Settlement      SettlementSettings `yaml:"settlement,omitempty"`
}

func (a AccountSettings) Denomination() Denomination {
	return Denomination{Code: a.AssetCode, Scale: a.AssetScale}
}

func (a AccountSettings) EngineScale() uint8 {
	if a.Settlement.EngineScale != nil {
		return *a.Settlement.EngineScale
	}
	return a.AssetScale
}

// AccountProvider supplies account settings. Implementations must be safe for concurrent use.
type AccountProvider interface {
	Get(id AccountId) (AccountSettings, bool)
}
