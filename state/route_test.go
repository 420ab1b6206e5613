package state

import (
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePattern_DefaultMatchesAll(t *testing.T) {
	r := NewRoute("g.bob", "bob")
	assert.True(t, r.AllowsSource("g.conn.alice"))
	assert.True(t, r.AllowsSource(""))

	var zero SourcePattern
	assert.True(t, zero.Matches("g.anyone"))
	assert.Equal(t, AllowAllSources, zero.String())
}

func TestSourcePattern_FullMatch(t *testing.T) {
	p := MustCompileSourcePattern(`g\.conn\.alice`)
	assert.True(t, p.Matches("g.conn.alice"))
	assert.False(t, p.Matches("g.conn.alice.sub"))
	assert.False(t, p.Matches("x.g.conn.alice"))

	p = MustCompileSourcePattern(`g\.conn\.(alice|carol)`)
	assert.True(t, p.Matches("g.conn.carol"))
	assert.False(t, p.Matches("g.conn.bob"))
}

func TestSourcePattern_Invalid(t *testing.T) {
	_, err := CompileSourcePattern("(")
	assert.Error(t, err)
}

func TestSourcePattern_Yaml(t *testing.T) {
	type wrapper struct {
		Source SourcePattern `yaml:"source"`
	}
	var w wrapper
	require.NoError(t, yaml.Unmarshal([]byte(`source: g\.conn\..*`), &w))
	assert.True(t, w.Source.Matches("g.conn.alice"))
	assert.False(t, w.Source.Matches("g.other.alice"))
}

func TestRouteExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRoute("g.bob", "bob")
	assert.False(t, r.Expired(now))

	exp := now.Add(time.Second)
	r.ExpiresAt = &exp
	assert.False(t, r.Expired(now))
	assert.True(t, r.Expired(exp))
	assert.True(t, r.Expired(exp.Add(time.Nanosecond)))
}

func TestRouteTraversed(t *testing.T) {
	r := NewRoute("g.bob", "bob")
	r.Path = []Address{"g.a", "g.b"}
	assert.True(t, r.Traversed("g.b"))
	assert.False(t, r.Traversed("g.c"))
}
