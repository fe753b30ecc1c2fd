package notes

import (
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// TabHeader is the per-tab metadata shared by every balance snapshot of a
// market-maker inventory entry.
type TabHeader struct {
	BaseToken       uint32        `json:"base_token"`
	QuoteToken      uint32        `json:"quote_token"`
	PubKey          curve.EcPoint `json:"pub_key"`
	IsSmartContract bool          `json:"is_smart_contract"`
	VlpToken        uint32        `json:"vlp_token"`
	MaxVlpSupply    uint64        `json:"max_vlp_supply"`
	Hash            field.Element `json:"hash"`
}

// NewTabHeader builds a TabHeader and computes its hash.
func NewTabHeader(baseToken, quoteToken uint32, pubKey curve.EcPoint, isSmartContract bool, vlpToken uint32, maxVlpSupply uint64) TabHeader {
	h := TabHeader{
		BaseToken:       baseToken,
		QuoteToken:      quoteToken,
		PubKey:          pubKey,
		IsSmartContract: isSmartContract,
		VlpToken:        vlpToken,
		MaxVlpSupply:    maxVlpSupply,
	}
	h.Hash = h.computeHash()
	return h
}

func (h TabHeader) computeHash() field.Element {
	scFlag := field.Zero
	if h.IsSmartContract {
		scFlag = field.FromUint64(1)
	}
	return field.HVec(
		field.FromUint64(uint64(h.BaseToken)),
		field.FromUint64(uint64(h.QuoteToken)),
		h.PubKey.AddressElement(),
		scFlag,
		field.FromUint64(uint64(h.VlpToken)),
		field.FromUint64(h.MaxVlpSupply),
	)
}

// Rehash recomputes Hash after mutating any field in place.
func (h *TabHeader) Rehash() {
	h.Hash = h.computeHash()
}

// OrderTab is a market-maker inventory entry living in the spot tree at
// index TabIdx.
type OrderTab struct {
	TabIdx      uint64        `json:"tab_idx"`
	TabHeader   TabHeader     `json:"tab_header"`
	BaseAmount  uint64        `json:"base_amount"`
	QuoteAmount uint64        `json:"quote_amount"`
	VlpSupply   uint64        `json:"vlp_supply"`
	Hash        field.Element `json:"hash"`
}

// NewOrderTab builds an OrderTab and computes its hash.
func NewOrderTab(tabIdx uint64, header TabHeader, baseAmount, quoteAmount, vlpSupply uint64) OrderTab {
	t := OrderTab{TabIdx: tabIdx, TabHeader: header, BaseAmount: baseAmount, QuoteAmount: quoteAmount, VlpSupply: vlpSupply}
	t.Hash = t.computeHash()
	return t
}

// computeHash implements hash = H*(header.hash, base_amount, quote_amount,
// vlp_supply) (spec.md §3).
func (t OrderTab) computeHash() field.Element {
	return field.HVec(t.TabHeader.Hash, field.FromUint64(t.BaseAmount), field.FromUint64(t.QuoteAmount), field.FromUint64(t.VlpSupply))
}

// Rehash recomputes and overwrites Hash, called after any balance mutation.
func (t *OrderTab) Rehash() {
	t.Hash = t.computeHash()
}

// IsEmpty reports whether the tab has been fully closed/burned.
func (t OrderTab) IsEmpty() bool {
	return t.BaseAmount == 0 && t.QuoteAmount == 0 && t.VlpSupply == 0
}
