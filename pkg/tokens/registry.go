// Package tokens holds the read-only token registry the core consults for
// decimals, price decimals, dust thresholds, and leverage bounds (spec.md §6
// "Constants"). The registry is populated once at startup and never mutated
// mid-batch; executors only read it.
package tokens

import "fmt"

// Info describes one token as known to the settlement core.
type Info struct {
	ID             uint32
	Symbol         string
	IsCollateral   bool // valid as margin/collateral token
	IsSynthetic    bool // valid as a perpetual's synthetic_token
	Decimals       uint8
	PriceDecimals  uint8
	DustAmount     uint64 // amounts at or below this are treated as fully spent/closed
	MaxLeverageLvg uint64 // LEVERAGE_DECIMALS fixed-point, e.g. 20_000_000 = 20x at 6 decimals
}

// LeverageDecimals is the fixed-point scale leverage values are expressed in
// (spec.md §6 "Numeric conventions").
const LeverageDecimals = 1_000_000

// FundingDenominator is the divisor applied when folding a funding rate into
// a margin delta (spec.md §4.2.4 step 1, §8 property 6).
const FundingDenominator = 1_000_000_000

// Registry is a read-only lookup table, safe for concurrent reads once built.
type Registry struct {
	byID map[uint32]Info
}

// NewRegistry builds a registry from a fixed token list. Constructing it is a
// startup-time concern; the core never adds or removes tokens mid-batch.
func NewRegistry(infos ...Info) *Registry {
	r := &Registry{byID: make(map[uint32]Info, len(infos))}
	for _, info := range infos {
		r.byID[info.ID] = info
	}
	return r
}

// Well-known token ids for the reference deployment (spec.md §8 scenario 1
// uses 55555 directly; these constants give tests and cmd/ wiring a name
// for it instead of a bare literal).
const (
	USDC uint32 = 55555
	BTC  uint32 = 12345
	ETH  uint32 = 54321
)

// Default returns the registry used by the reference deployment: one
// collateral token (USDC-like) and one synthetic (BTC-like perpetual).
func Default() *Registry {
	return NewRegistry(
		Info{ID: USDC, Symbol: "USDC", IsCollateral: true, Decimals: 6, PriceDecimals: 0, DustAmount: 10},
		Info{ID: BTC, Symbol: "BTC", IsSynthetic: true, Decimals: 8, PriceDecimals: 6, DustAmount: 1000, MaxLeverageLvg: 20 * LeverageDecimals},
		Info{ID: ETH, Symbol: "ETH", IsSynthetic: true, Decimals: 8, PriceDecimals: 6, DustAmount: 1000, MaxLeverageLvg: 15 * LeverageDecimals},
	)
}

// Lookup returns the Info for a token id.
func (r *Registry) Lookup(id uint32) (Info, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// RequireToken errors unless id is registered at all.
func (r *Registry) RequireToken(id uint32) (Info, error) {
	info, ok := r.Lookup(id)
	if !ok {
		return Info{}, fmt.Errorf("tokens: unknown token %d", id)
	}
	return info, nil
}

// RequireCollateral errors unless id is a valid collateral/margin token.
func (r *Registry) RequireCollateral(id uint32) (Info, error) {
	info, err := r.RequireToken(id)
	if err != nil {
		return Info{}, err
	}
	if !info.IsCollateral {
		return Info{}, fmt.Errorf("tokens: %d is not a collateral token", id)
	}
	return info, nil
}

// RequireSynthetic errors unless id is a valid perpetual synthetic token.
func (r *Registry) RequireSynthetic(id uint32) (Info, error) {
	info, err := r.RequireToken(id)
	if err != nil {
		return Info{}, err
	}
	if !info.IsSynthetic {
		return Info{}, fmt.Errorf("tokens: %d is not a synthetic token", id)
	}
	return info, nil
}

// Dust reports whether amount is at or below id's dust threshold, the
// "fully filled"/"position fully closed" test used throughout the executors.
func (r *Registry) Dust(id uint32, amount uint64) bool {
	info, ok := r.Lookup(id)
	if !ok {
		return amount == 0
	}
	return amount <= info.DustAmount
}

// MaxLeverage returns the LeverageDecimals fixed-point leverage ceiling for a
// synthetic token, independent of position size (spec.md §4.2.4 step 2:
// get_max_leverage(synthetic_token, size) — the reference implementation
// does not tier by size, so this ignores the size argument but keeps it in
// the call signature for forward compatibility with tiered schedules).
func (r *Registry) MaxLeverage(syntheticToken uint32, _ uint64) uint64 {
	info, ok := r.Lookup(syntheticToken)
	if !ok {
		return 0
	}
	return info.MaxLeverageLvg
}

// NotionalMultiplier computes 10^(base_decimals+price_decimals-collateral_decimals)
// for cross-decimal notional conversions (spec.md §6).
func NotionalMultiplier(baseDecimals, priceDecimals, collateralDecimals uint8) int64 {
	exp := int(baseDecimals) + int(priceDecimals) - int(collateralDecimals)
	mul := int64(1)
	for i := 0; i < exp; i++ {
		mul *= 10
	}
	for i := 0; i > exp; i-- {
		mul /= 10
	}
	if mul == 0 {
		mul = 1
	}
	return mul
}
