package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("Alice~2-b"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("a.b"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func validNode() *NodeCfg {
	return &NodeCfg{
		OperatorAddress: "g.conn",
		Accounts: []AccountSettings{
			{Id: "alice", AssetCode: "USD", AssetScale: 2},
			{Id: "bob", AssetCode: "EUR", AssetScale: 2},
		},
		Rates: map[string]string{"USD/EUR": "0.9"},
		Routing: RoutingCfg{
			DefaultRoute: "bob",
			StaticRoutes: []StaticRouteCfg{
				{Prefix: "g.bob", NextHop: "bob", Source: `g\.conn\..*`},
			},
		},
	}
}

func TestNodeConfigValidator_Valid(t *testing.T) {
	assert.NoError(t, NodeConfigValidator(validNode()))
}

func TestNodeConfigValidator_BadOperator(t *testing.T) {
	cfg := validNode()
	cfg.OperatorAddress = "conn"
	assert.Error(t, NodeConfigValidator(cfg))
}

func TestNodeConfigValidator_DuplicateAccount(t *testing.T) {
	cfg := validNode()
	cfg.Accounts = append(cfg.Accounts, AccountSettings{Id: "alice", AssetCode: "USD"})
	assert.Error(t, NodeConfigValidator(cfg))
}

func TestNodeConfigValidator_UnknownNextHop(t *testing.T) {
	cfg := validNode()
	cfg.Routing.StaticRoutes[0].NextHop = "carol"
	assert.Error(t, NodeConfigValidator(cfg))

	cfg = validNode()
	cfg.Routing.DefaultRoute = "carol"
	assert.Error(t, NodeConfigValidator(cfg))
}

func TestNodeConfigValidator_BadSource(t *testing.T) {
	cfg := validNode()
	cfg.Routing.StaticRoutes[0].Source = "("
	assert.Error(t, NodeConfigValidator(cfg))
}

func TestNodeConfigValidator_BadRate(t *testing.T) {
	cfg := validNode()
	cfg.Rates["EUR"] = "1"
	assert.Error(t, NodeConfigValidator(cfg))

	cfg = validNode()
	cfg.Rates["EUR/USD"] = "abc"
	assert.Error(t, NodeConfigValidator(cfg))

	cfg = validNode()
	cfg.Rates["EUR/USD"] = "-1"
	assert.Error(t, NodeConfigValidator(cfg))
}

func TestAccountValidator_Thresholds(t *testing.T) {
	minBal := int64(-100)
	threshold := int64(-200)
	acct := AccountSettings{Id: "a", AssetCode: "USD", Balance: BalanceSettings{MinBalance: &minBal, SettleThreshold: &threshold}}
	assert.Error(t, AccountValidator(&acct))

	threshold = 500
	acct.Balance.SettleTo = 600
	assert.Error(t, AccountValidator(&acct))

	acct.Balance.SettleTo = 0
	assert.NoError(t, AccountValidator(&acct))
}
