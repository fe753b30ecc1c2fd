package notes

import (
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// OrderSide is the direction of a perpetual position.
type OrderSide int

const (
	Long OrderSide = iota
	Short
)

func (s OrderSide) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

func (s OrderSide) sign() int64 {
	if s == Short {
		return -1
	}
	return 1
}

// MaintenanceMarginBps is the maintenance-margin fraction (in basis points of
// the position's margin) left in a position at the liquidation trigger, before it reaches
// the bankruptcy price where margin hits exactly zero.
const MaintenanceMarginBps = 300 // 3%

// PositionHeader carries the immutable-until-lifecycle-event metadata of a
// perpetual position.
type PositionHeader struct {
	SyntheticToken           uint32        `json:"synthetic_token"`
	AllowPartialLiquidations bool          `json:"allow_partial_liquidations"`
	PositionAddress          curve.EcPoint `json:"position_address"`
	VlpToken                 uint32        `json:"vlp_token"`
	MaxVlpSupply             uint64        `json:"max_vlp_supply"`
	IsSmartContract          bool          `json:"is_smart_contract"`
	Hash                     field.Element `json:"hash"`
}

// NewPositionHeader builds a PositionHeader and computes its hash.
func NewPositionHeader(syntheticToken uint32, allowPartial bool, address curve.EcPoint, vlpToken uint32, maxVlpSupply uint64, isSmartContract bool) PositionHeader {
	h := PositionHeader{
		SyntheticToken:           syntheticToken,
		AllowPartialLiquidations: allowPartial,
		PositionAddress:          address,
		VlpToken:                 vlpToken,
		MaxVlpSupply:             maxVlpSupply,
		IsSmartContract:          isSmartContract,
	}
	h.Hash = h.computeHash()
	return h
}

func (h PositionHeader) computeHash() field.Element {
	partialFlag := field.Zero
	if h.AllowPartialLiquidations {
		partialFlag = field.FromUint64(1)
	}
	scFlag := field.Zero
	if h.IsSmartContract {
		scFlag = field.FromUint64(1)
	}
	return field.HVec(
		field.FromUint64(uint64(h.SyntheticToken)),
		partialFlag,
		h.PositionAddress.AddressElement(),
		field.FromUint64(uint64(h.VlpToken)),
		field.FromUint64(h.MaxVlpSupply),
		scFlag,
	)
}

// Rehash recomputes Hash after mutating any field in place.
func (h *PositionHeader) Rehash() {
	h.Hash = h.computeHash()
}

// PerpPosition lives in the perpetual-state tree at Index.
type PerpPosition struct {
	Index           uint64          `json:"index"`
	PositionHeader  PositionHeader  `json:"position_header"`
	OrderSide       OrderSide       `json:"order_side"`
	PositionSize    uint64          `json:"position_size"`
	Margin          uint64          `json:"margin"`
	EntryPrice      uint64          `json:"entry_price"`
	LiquidationPrice uint64         `json:"liquidation_price"`
	BankruptcyPrice  uint64         `json:"bankruptcy_price"`
	LastFundingIdx   uint64         `json:"last_funding_idx"`
	VlpSupply        uint64         `json:"vlp_supply"`
	Hash             field.Element  `json:"hash"`
}

// NewPosition constructs a fresh position, deriving liquidation/bankruptcy
// prices from (margin, size, entry_price, side) and computing its hash.
func NewPosition(index uint64, header PositionHeader, side OrderSide, size, margin, entryPrice, fundingIdx uint64) PerpPosition {
	p := PerpPosition{
		Index:          index,
		PositionHeader: header,
		OrderSide:      side,
		PositionSize:   size,
		Margin:         margin,
		EntryPrice:     entryPrice,
		LastFundingIdx: fundingIdx,
	}
	p.RederivePrices()
	p.Rehash()
	return p
}

// RederivePrices recomputes LiquidationPrice and BankruptcyPrice from the
// current (margin, size, entry_price, side), the invariant spec.md §3
// requires every executor maintain after mutating any of those fields.
func (p *PerpPosition) RederivePrices() {
	if p.PositionSize == 0 {
		p.LiquidationPrice = 0
		p.BankruptcyPrice = 0
		return
	}
	sign := p.OrderSide.sign()
	// bankruptcy: price move that drives margin to exactly zero.
	bankruptcyDelta := int64(p.Margin) / int64(p.PositionSize)
	// liquidation: triggers while MaintenanceMarginBps/10000 of the margin
	// remains, i.e. before margin is fully depleted.
	maintenance := int64(p.Margin) * MaintenanceMarginBps / 10000
	liqDelta := (int64(p.Margin) - maintenance) / int64(p.PositionSize)

	entry := int64(p.EntryPrice)
	bankruptcy := entry - sign*bankruptcyDelta
	liq := entry - sign*liqDelta
	if bankruptcy < 0 {
		bankruptcy = 0
	}
	if liq < 0 {
		liq = 0
	}
	p.BankruptcyPrice = uint64(bankruptcy)
	p.LiquidationPrice = uint64(liq)
}

func (p PerpPosition) computeHash() field.Element {
	sideVal := field.Zero
	if p.OrderSide == Short {
		sideVal = field.FromUint64(1)
	}
	return field.HVec(
		p.PositionHeader.Hash,
		sideVal,
		field.FromUint64(p.PositionSize),
		field.FromUint64(p.Margin),
		field.FromUint64(p.EntryPrice),
		field.FromUint64(p.LiquidationPrice),
		field.FromUint64(p.LastFundingIdx),
		field.FromUint64(p.VlpSupply),
	)
}

// Rehash recomputes and overwrites Hash.
func (p *PerpPosition) Rehash() {
	p.Hash = p.computeHash()
}

// IsEmpty reports whether the position has been fully closed/liquidated.
func (p PerpPosition) IsEmpty() bool {
	return p.PositionSize == 0
}

// Notional returns size*entry_price, the collateral-token-denominated
// exposure used for leverage and liquidation-fee computations.
func (p PerpPosition) Notional() uint64 {
	return p.PositionSize * p.EntryPrice
}

// Leverage returns the LEVERAGE_DECIMALS fixed-point leverage of the
// position (notional/margin).
func (p PerpPosition) Leverage(leverageDecimals uint64) uint64 {
	if p.Margin == 0 {
		return 0
	}
	return p.Notional() * leverageDecimals / p.Margin
}

// IsLiquidatable reports whether marketPrice has crossed the position's
// liquidation price given its side (spec.md §4.2.5 step 2).
func (p PerpPosition) IsLiquidatable(marketPrice uint64) bool {
	if p.PositionSize == 0 {
		return false
	}
	if p.OrderSide == Long {
		return marketPrice <= p.LiquidationPrice
	}
	return marketPrice >= p.LiquidationPrice
}

// LiquidationResult is the outcome of running liquidate_position against a
// market price (spec.md §4.2.5 step 3).
type LiquidationResult struct {
	LiquidatedSize      uint64
	LiquidatorFee       uint64
	LeftoverCollateral  int64 // may be negative: an insurance-fund debit
	IsPartialLiquidation bool
}

// LiquidatorFeeBps is the fee paid to the liquidator, in basis points of the
// liquidated notional.
const LiquidatorFeeBps = 50 // 0.5%

// LiquidatePosition computes the liquidation outcome at marketPrice: the
// position's P&L is taken at marketPrice, the liquidator fee is
// LiquidatorFeeBps of the notional at marketPrice, and whatever margin
// remains after both is the leftover; any shortfall below zero becomes a
// negative leftover (an insurance-fund debit, spec.md §9 Open Question 3).
func (p PerpPosition) LiquidatePosition(marketPrice uint64) LiquidationResult {
	if p.PositionSize == 0 {
		return LiquidationResult{}
	}
	sign := p.OrderSide.sign()
	entry := int64(p.EntryPrice)
	market := int64(marketPrice)
	size := int64(p.PositionSize)

	pnl := sign * (market - entry) * size
	equity := int64(p.Margin) + pnl
	notional := size * market
	fee := notional * LiquidatorFeeBps / 10000

	leftover := equity - fee

	partial := p.PositionHeader.AllowPartialLiquidations && leftover > 0
	if partial {
		// partial liquidation unwinds half the position size, leaving the
		// rest of the position open.
		return LiquidationResult{
			LiquidatedSize:       p.PositionSize / 2,
			LiquidatorFee:        uint64(fee),
			LeftoverCollateral:   0,
			IsPartialLiquidation: true,
		}
	}
	return LiquidationResult{
		LiquidatedSize:       p.PositionSize,
		LiquidatorFee:        uint64(fee),
		LeftoverCollateral:   leftover,
		IsPartialLiquidation: false,
	}
}
