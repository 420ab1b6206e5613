package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/encodeous/weft/state"
	"github.com/jellydator/ttlcache/v3"
)

// ExchangeRates supplies the value of one whole unit of src expressed in dst. Implementations must be
// safe for concurrent use.
type ExchangeRates interface {
	Rate(src, dst string) (*big.Rat, error)
}

type ratePair struct {
	src, dst string
}

// StaticRates is a fixed rate sheet. A missing pair falls back to the inverse of the opposite pair.
type StaticRates struct {
	rates map[ratePair]*big.Rat
}

// NewStaticRates parses a rate sheet keyed by "SRC/DST"
func NewStaticRates(sheet map[string]string) (*StaticRates, error) {
	s := &StaticRates{rates: make(map[ratePair]*big.Rat, len(sheet))}
	for key, value := range sheet {
		if err := state.RateKeyValidator(key, value); err != nil {
			return nil, err
		}
		src, dst, _ := strings.Cut(key, "/")
		r, _ := new(big.Rat).SetString(value)
		s.rates[ratePair{src, dst}] = r
	}
	return s, nil
}

func (s *StaticRates) Rate(src, dst string) (*big.Rat, error) {
	if src == dst {
		return big.NewRat(1, 1), nil
	}
	if r, ok := s.rates[ratePair{src, dst}]; ok {
		return new(big.Rat).Set(r), nil
	}
	if r, ok := s.rates[ratePair{dst, src}]; ok {
		return new(big.Rat).Inv(r), nil
	}
	return nil, fmt.Errorf("%w for %s/%s", ErrNoRate, src, dst)
}

// CachedRates memoizes a slow rate source for a fixed time
type CachedRates struct {
	source ExchangeRates
	cache  *ttlcache.Cache[ratePair, *big.Rat]
}

func NewCachedRates(source ExchangeRates, ttl time.Duration) *CachedRates {
	return &CachedRates{
		source: source,
		cache: ttlcache.New[ratePair, *big.Rat](
			ttlcache.WithTTL[ratePair, *big.Rat](ttl),
			ttlcache.WithDisableTouchOnHit[ratePair, *big.Rat](),
		),
	}
}

func (c *CachedRates) Rate(src, dst string) (*big.Rat, error) {
	key := ratePair{src, dst}
	if item := c.cache.Get(key); item != nil && !item.IsExpired() {
		return new(big.Rat).Set(item.Value()), nil
	}
	r, err := c.source.Rate(src, dst)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, new(big.Rat).Set(r), ttlcache.DefaultTTL)
	return r, nil
}

// Purge drops expired rates
func (c *CachedRates) Purge() {
	c.cache.DeleteExpired()
}

// AmountConverter re-denominates fixed-point amounts
type AmountConverter struct {
	Rates ExchangeRates
	Log   *slog.Logger
}

var maxAmount = new(big.Int).SetUint64(^uint64(0))

// Convert converts amount from the src denomination into dst, rounding toward zero. A non-zero amount
// that converts to zero is logged but is not an error.
func (c *AmountConverter) Convert(amount uint64, src, dst state.Denomination) (uint64, error) {
	rate, err := c.Rates.Rate(src.Code, dst.Code)
	if err != nil {
		return 0, err
	}
	if rate == nil || rate.Sign() < 0 {
		return 0, fmt.Errorf("%w: rate source returned %v for %s/%s", ErrNoRate, rate, src.Code, dst.Code)
	}
	// amount * rate * 10^dstScale / 10^srcScale
	num := new(big.Int).SetUint64(amount)
	num.Mul(num, rate.Num())
	num.Mul(num, pow10(dst.Scale))
	den := new(big.Int).Mul(rate.Denom(), pow10(src.Scale))
	out := num.Quo(num, den)
	if out.Cmp(maxAmount) > 0 {
		return 0, fmt.Errorf("%w: %d %s converts beyond the maximum packet amount", ErrAmountTooLarge, amount, src)
	}
	res := out.Uint64()
	if amount != 0 && res == 0 && c.Log != nil {
		c.Log.Warn("conversion underflow", "amount", amount, "src", src.String(), "dst", dst.String(), "rate", rate.FloatString(9))
	}
	return res, nil
}

func pow10(scale uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
}
