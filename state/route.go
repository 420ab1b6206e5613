package state

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// AllowAllSources is the default source restriction, it matches every sender.
const AllowAllSources = "(.*?)"

var allowAll = MustCompileSourcePattern(AllowAllSources)

// SourcePattern restricts which senders may use a route. The expression must match the whole
// sender address.
type SourcePattern struct {
	expr *regexp.Regexp
	raw  string
}

func CompileSourcePattern(expr string) (SourcePattern, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return SourcePattern{}, fmt.Errorf("invalid source restriction %q: %w", expr, err)
	}
	return SourcePattern{expr: re, raw: expr}, nil
}

func MustCompileSourcePattern(expr string) SourcePattern {
	p, err := CompileSourcePattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p SourcePattern) Matches(src Address) bool {
	if p.expr == nil {
		return true
	}
	return p.expr.MatchString(string(src))
}

func (p SourcePattern) String() string {
	if p.expr == nil {
		return AllowAllSources
	}
	return p.raw
}

func (p SourcePattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SourcePattern) UnmarshalText(text []byte) error {
	parsed, err := CompileSourcePattern(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Route is an entry in the routing table. Routes are values: a re-broadcast produces a new Route
// that supersedes the old one.
type Route struct {
	Prefix  Prefix
	NextHop AccountId
	// Path lists the nodes the route advertisement has already traversed
	Path      []Address
	Auth      []byte
	ExpiresAt *time.Time
	Source    SourcePattern
}

func NewRoute(prefix Prefix, nextHop AccountId) Route {
	return Route{
		Prefix:  prefix,
		NextHop: nextHop,
		Source:  allowAll,
	}
}

func (r Route) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

func (r Route) AllowsSource(src Address) bool {
	return r.Source.Matches(src)
}

func (r Route) Traversed(node Address) bool {
	return slices.Contains(r.Path, node)
}

func (r Route) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("(prefix: %s, nh: %s", r.Prefix, r.NextHop))
	if len(r.Path) != 0 {
		path := make([]string, len(r.Path))
		for i, p := range r.Path {
			path[i] = string(p)
		}
		sb.WriteString(fmt.Sprintf(", path: [%s]", strings.Join(path, " ")))
	}
	if r.Source.String() != AllowAllSources {
		sb.WriteString(fmt.Sprintf(", src: %s", r.Source))
	}
	if r.ExpiresAt != nil {
		sb.WriteString(fmt.Sprintf(", exp: %s", r.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	sb.WriteString(")")
	return sb.String()
}
