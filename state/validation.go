package state

import (
	"fmt"
	"math/big"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var namePattern, _ = regexp.Compile("^[a-zA-Z0-9_~-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

// NameValidator checks that s can be used as a single address segment, e.g. an account id
func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > MaxAccountIdLength {
		return fmt.Errorf("len(\"%s\") = %d > %d is too long", s, len(s), MaxAccountIdLength)
	}
	return nil
}

func AccountValidator(acct *AccountSettings) error {
	err := NameValidator(string(acct.Id))
	if err != nil {
		return err
	}
	if acct.AssetCode == "" {
		return fmt.Errorf("account %s has no asset code", acct.Id)
	}
	switch acct.Relationship {
	case "", RelationshipPeer, RelationshipParent, RelationshipChild:
	default:
		return fmt.Errorf("account %s has unknown relationship %q", acct.Id, acct.Relationship)
	}
	b := acct.Balance
	if b.MinBalance != nil && b.SettleThreshold != nil && *b.SettleThreshold < *b.MinBalance {
		return fmt.Errorf("account %s: settle_threshold %d is below min_balance %d", acct.Id, *b.SettleThreshold, *b.MinBalance)
	}
	if b.SettleThreshold != nil && b.SettleTo > *b.SettleThreshold {
		return fmt.Errorf("account %s: settle_to %d is above settle_threshold %d", acct.Id, b.SettleTo, *b.SettleThreshold)
	}
	if acct.RateLimit.MaxPacketsPerSecond < 0 {
		return fmt.Errorf("account %s: max_packets_per_second must not be negative", acct.Id)
	}
	return nil
}

// RateKeyValidator checks a "SRC/DST" rate entry
func RateKeyValidator(key, value string) error {
	src, dst, ok := strings.Cut(key, "/")
	if !ok || src == "" || dst == "" {
		return fmt.Errorf("rate key %q must have the form SRC/DST", key)
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		return fmt.Errorf("rate %s = %q is not a number", key, value)
	}
	if r.Sign() <= 0 {
		return fmt.Errorf("rate %s must be positive", key)
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := AddressValidator(string(node.OperatorAddress))
	if err != nil {
		return fmt.Errorf("operator_address: %w", err)
	}
	if node.MinMessageWindow < 0 || node.MaxHoldTime < 0 {
		return fmt.Errorf("min_message_window and max_hold_time must not be negative")
	}
	ids := make(map[AccountId]struct{})
	for i := range node.Accounts {
		acct := &node.Accounts[i]
		err = AccountValidator(acct)
		if err != nil {
			return err
		}
		if _, ok := ids[acct.Id]; ok {
			return fmt.Errorf("duplicate account %s", acct.Id)
		}
		ids[acct.Id] = struct{}{}
	}
	if node.Routing.DefaultRoute != "" {
		if _, ok := ids[node.Routing.DefaultRoute]; !ok {
			return fmt.Errorf("default_route references unknown account %s", node.Routing.DefaultRoute)
		}
	}
	if node.Routing.GlobalPrefix != "" {
		err = PrefixValidator(string(node.Routing.GlobalPrefix))
		if err != nil {
			return fmt.Errorf("global_prefix: %w", err)
		}
	}
	for _, sr := range node.Routing.StaticRoutes {
		err = PrefixValidator(string(sr.Prefix))
		if err != nil {
			return err
		}
		if _, ok := ids[sr.NextHop]; !ok {
			return fmt.Errorf("static route %s references unknown account %s", sr.Prefix, sr.NextHop)
		}
		if sr.Source != "" {
			if _, err = CompileSourcePattern(sr.Source); err != nil {
				return err
			}
		}
	}
	for key, value := range node.Rates {
		if err = RateKeyValidator(key, value); err != nil {
			return err
		}
	}
	for id := range node.Links {
		if _, ok := ids[AccountId(id)]; !ok {
			return fmt.Errorf("link options reference unknown account %s", id)
		}
	}
	if node.LogPath != "" {
		if err = PathValidator(node.LogPath); err != nil {
			return fmt.Errorf("log_path: %w", err)
		}
	}
	return nil
}
