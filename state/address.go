package state

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxAddressLength is the longest ILP address accepted on the wire.
const MaxAddressLength = 1023

var (
	addressPattern = regexp.MustCompile(`^(g|private|example|peer|self|test[1-3]?|local)([.][a-zA-Z0-9_~-]+)+$`)
	prefixPattern  = regexp.MustCompile(`^(g|private|example|peer|self|test[1-3]?|local)([.][a-zA-Z0-9_~-]+)*$`)
)

// Address is a dot-segmented Interledger address, e.g. g.bob.alice
type Address string

// Prefix is an address prefix used as a routing key. Unlike an Address, a prefix may consist
// of only the allocation scheme (e.g. "g").
type Prefix string

func ParseAddress(s string) (Address, error) {
	if err := AddressValidator(s); err != nil {
		return "", err
	}
	return Address(s), nil
}

func ParsePrefix(s string) (Prefix, error) {
	if err := PrefixValidator(s); err != nil {
		return "", err
	}
	return Prefix(s), nil
}

func AddressValidator(s string) error {
	if len(s) > MaxAddressLength {
		return fmt.Errorf("address of length %d exceeds %d", len(s), MaxAddressLength)
	}
	if !addressPattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid ILP address", s)
	}
	return nil
}

func PrefixValidator(s string) error {
	if len(s) > MaxAddressLength {
		return fmt.Errorf("prefix of length %d exceeds %d", len(s), MaxAddressLength)
	}
	if !prefixPattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid ILP address prefix", s)
	}
	return nil
}

// HasPrefix reports whether p matches a, i.e. a equals p or continues p at a segment boundary.
func (a Address) HasPrefix(p Prefix) bool {
	if len(a) < len(p) || string(a[:len(p)]) != string(p) {
		return false
	}
	return len(a) == len(p) || a[len(p)] == '.'
}

// With appends a segment to the address.
func (a Address) With(segment string) Address {
	return Address(string(a) + "." + segment)
}

func (a Address) Scheme() string {
	scheme, _, _ := strings.Cut(string(a), ".")
	return scheme
}

func (a Address) AsPrefix() Prefix {
	return Prefix(a)
}

// Parent strips the last segment, returning false once only the scheme is left.
func (p Prefix) Parent() (Prefix, bool) {
	idx := strings.LastIndexByte(string(p), '.')
	if idx == -1 {
		return "", false
	}
	return p[:idx], true
}

func (p Prefix) Segments() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), ".") + 1
}
