package core

import (
	"bytes"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConverter(t *testing.T, sheet map[string]string) (*AmountConverter, *bytes.Buffer) {
	rates, err := NewStaticRates(sheet)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	return &AmountConverter{Rates: rates, Log: slog.New(slog.NewTextHandler(buf, nil))}, buf
}

func TestConvert_FloorsToZeroWithWarning(t *testing.T) {
	c, logs := newConverter(t, nil)
	out, err := c.Convert(99, state.Denomination{Code: "USD", Scale: 2}, state.Denomination{Code: "USD", Scale: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), out)
	assert.Contains(t, logs.String(), "conversion underflow")
}

func TestConvert_NoWarningForZero(t *testing.T) {
	c, logs := newConverter(t, nil)
	out, err := c.Convert(0, state.Denomination{Code: "USD", Scale: 2}, state.Denomination{Code: "USD", Scale: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), out)
	assert.Empty(t, logs.String())
}

func TestConvert_Scales(t *testing.T) {
	c, _ := newConverter(t, nil)
	usd2 := state.Denomination{Code: "USD", Scale: 2}
	usd9 := state.Denomination{Code: "USD", Scale: 9}

	out, err := c.Convert(123, usd2, usd9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_230_000_000), out)

	out, err = c.Convert(1_239_999_999, usd9, usd2)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), out)
}

func TestConvert_CrossAsset(t *testing.T) {
	c, _ := newConverter(t, map[string]string{"USD/EUR": "0.9"})
	usd := state.Denomination{Code: "USD", Scale: 2}
	eur := state.Denomination{Code: "EUR", Scale: 3}

	out, err := c.Convert(1000, usd, eur) // $10.00 -> €9.000
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), out)

	// inverse pair: 1 EUR = 1/0.9 USD, €9.000 -> $10.00
	out, err = c.Convert(9000, eur, usd)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), out)

	// 1/0.9 rounds down
	out, err = c.Convert(1, state.Denomination{Code: "EUR", Scale: 0}, state.Denomination{Code: "USD", Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(111), out)
}

func TestConvert_MissingRate(t *testing.T) {
	c, _ := newConverter(t, nil)
	_, err := c.Convert(1, state.Denomination{Code: "USD"}, state.Denomination{Code: "XRP"})
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestConvert_Overflow(t *testing.T) {
	c, _ := newConverter(t, nil)
	_, err := c.Convert(^uint64(0), state.Denomination{Code: "USD", Scale: 0}, state.Denomination{Code: "USD", Scale: 1})
	assert.ErrorIs(t, err, ErrAmountTooLarge)
}

func TestNewStaticRates_Invalid(t *testing.T) {
	_, err := NewStaticRates(map[string]string{"USD": "1"})
	assert.Error(t, err)
}

type countingRates struct {
	calls int
}

func (c *countingRates) Rate(src, dst string) (*big.Rat, error) {
	c.calls++
	return big.NewRat(3, 2), nil
}

func TestCachedRates(t *testing.T) {
	source := &countingRates{}
	cached := NewCachedRates(source, time.Minute)
	for i := 0; i < 3; i++ {
		r, err := cached.Rate("USD", "EUR")
		require.NoError(t, err)
		assert.Equal(t, 0, r.Cmp(big.NewRat(3, 2)))
	}
	assert.Equal(t, 1, source.calls)

	_, err := cached.Rate("EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)

	// callers may not corrupt the cached value
	r, _ := cached.Rate("USD", "EUR")
	r.SetInt64(100)
	r, _ = cached.Rate("USD", "EUR")
	assert.Equal(t, 0, r.Cmp(big.NewRat(3, 2)))
}

type fixedRate struct {
	rate *big.Rat
}

func (f fixedRate) Rate(src, dst string) (*big.Rat, error) {
	return f.rate, nil
}

func TestConvert_InvalidRate(t *testing.T) {
	usd := state.Denomination{Code: "USD", Scale: 2}
	eur := state.Denomination{Code: "EUR", Scale: 2}
	for _, rate := range []*big.Rat{nil, big.NewRat(-1, 1)} {
		c := &AmountConverter{Rates: fixedRate{rate}}
		out, err := c.Convert(100, usd, eur)
		assert.ErrorIs(t, err, ErrNoRate)
		assert.Equal(t, uint64(0), out)
		assert.Equal(t, state.T00InternalError, RejectCode(err))
	}
}
