package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
)

// DepositMsg mints a set of notes at tree indices chosen by FirstZeroIdx.
// No signature check: deposits are assumed authenticated by an on-chain
// observer upstream (spec.md §4.2.1).
type DepositMsg struct {
	NotesToMint []NoteMint `json:"notes_to_mint"`
}

// NoteMint is one note's (address, token, amount, blinding) before an index
// has been assigned.
type NoteMint struct {
	Address  curve.EcPoint `json:"address"`
	Token    uint32        `json:"token"`
	Amount   uint64        `json:"amount"`
	Blinding field.Element `json:"blinding"`
}

// WithdrawalMsg spends notes_in, optionally leaving a refund note, and pays
// out to an external destination address (spec.md §4.2.2).
type WithdrawalMsg struct {
	NotesIn           []notes.Note   `json:"notes_in"`
	RefundNote        *notes.Note    `json:"refund_note"`
	DestAddress       curve.EcPoint  `json:"dest_address"`
	WithdrawalAmount  uint64         `json:"withdrawal_amount"`
	Token             uint32         `json:"token"`
	Signature         []byte         `json:"signature"`
}

// NoteBackedOrder carries its own spendable notes (spec.md §4.2.3
// "Note-backed").
type NoteBackedOrder struct {
	OrderID             uint64         `json:"order_id"`
	NotesIn             []notes.Note   `json:"notes_in"`
	RefundNote          *notes.Note    `json:"refund_note"`
	DestReceivedAddress curve.EcPoint  `json:"dest_received_address"`
	DestReceivedBlinding field.Element `json:"dest_received_blinding"`
	TokenSpent          uint32         `json:"token_spent"`
	TokenReceived       uint32         `json:"token_received"`
	AmountSpent         uint64         `json:"amount_spent"`
	AmountReceived      uint64         `json:"amount_received"`
	Signature           []byte         `json:"signature"`
}

// TabBackedOrder references a market-maker OrderTab by index instead of
// carrying notes (spec.md §4.2.3 "Tab-backed").
type TabBackedOrder struct {
	OrderID        uint64 `json:"order_id"`
	TabIdx         uint64 `json:"tab_idx"`
	TokenSpent     uint32 `json:"token_spent"`
	TokenReceived  uint32 `json:"token_received"`
	AmountSpent    uint64 `json:"amount_spent"`
	AmountReceived uint64 `json:"amount_received"`
}

// SpotOrderSide is exactly one of NoteOrder or TabOrder.
type SpotOrderSide struct {
	NoteOrder *NoteBackedOrder `json:"note_order,omitempty"`
	TabOrder  *TabBackedOrder  `json:"tab_order,omitempty"`
}

// Fill is the matcher's proposed settlement amounts for one swap
// (spec.md §4.2.3).
type Fill struct {
	SpentX uint64 `json:"spent_x"`
	SpentY uint64 `json:"spent_y"`
	FeeX   uint64 `json:"fee_x"`
	FeeY   uint64 `json:"fee_y"`
}

// SpotSwapMsg is the input to the spot-swap executor: two orders plus the
// matcher's proposed fill.
type SpotSwapMsg struct {
	OrderA SpotOrderSide `json:"order_a"`
	OrderB SpotOrderSide `json:"order_b"`
	Fill   Fill          `json:"fill"`
}

// PositionEffectType is the lifecycle action a perpetual order performs
// against the target position (spec.md §4.2.4).
type PositionEffectType int

const (
	Open PositionEffectType = iota
	Modify
	Close
)

func (p PositionEffectType) String() string {
	switch p {
	case Open:
		return "open"
	case Modify:
		return "modify"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// PerpOrder is one side of a perpetual swap.
type PerpOrder struct {
	OrderID           uint64             `json:"order_id"`
	EffectType        PositionEffectType `json:"position_effect_type"`
	Side              notes.OrderSide    `json:"side"`
	SyntheticToken    uint32             `json:"synthetic_token"`
	CollateralToken   uint32             `json:"collateral_token"`
	PositionIdx       *uint64            `json:"position_idx,omitempty"`
	NotesIn           []notes.Note       `json:"notes_in"`
	RefundNote        *notes.Note        `json:"refund_note"`
	InitialMargin     uint64             `json:"initial_margin"`
	CloseAddress      curve.EcPoint      `json:"close_address"`
	CloseBlinding      field.Element     `json:"close_blinding"`
	Signature         []byte             `json:"signature"`
}

// PerpSwapMsg is the input to the perpetual-swap executor.
type PerpSwapMsg struct {
	OrderA           PerpOrder `json:"order_a"`
	OrderB           PerpOrder `json:"order_b"`
	FillSize         uint64    `json:"fill_size"`
	FillPrice        uint64    `json:"fill_price"`
	CurrentFundingIdx uint64   `json:"current_funding_idx"`
}

// SwapFundingInfo is the funding context a liquidation is evaluated under
// (spec.md §4.2.5).
type SwapFundingInfo struct {
	CurrentFundingIdx uint64 `json:"current_funding_idx"`
}

// LiquidationOrderMsg carries the liquidator's own order fields plus the
// target position (spec.md §4.2.5).
type LiquidationOrderMsg struct {
	OrderID          uint64          `json:"order_id"`
	Side             notes.OrderSide `json:"side"`
	NotesIn          []notes.Note    `json:"notes_in"`
	RefundNote       *notes.Note     `json:"refund_note"`
	InitialMargin    uint64          `json:"initial_margin"`
	OrderPrice       uint64          `json:"order_price"`
	PositionIdx      uint64          `json:"position_idx"`
	Position         notes.PerpPosition `json:"position"`
	MarketPrice      uint64          `json:"market_price"`
	IndexPrice       uint64          `json:"index_price"`
	Funding          SwapFundingInfo `json:"funding_info"`
	Signature        []byte          `json:"signature"`
}

// MarginChangeMsg adds or removes margin on an existing position
// (spec.md §4.2.6). Exactly one of NotesIn/RefundNote (add) or
// CloseAddress/CloseBlinding (remove) applies, selected by the sign of
// AmountChange.
type MarginChangeMsg struct {
	PositionIdx     uint64         `json:"position_idx"`
	AmountChange    int64          `json:"amount_change"`
	CollateralToken uint32         `json:"collateral_token"`
	NotesIn       []notes.Note   `json:"notes_in"`
	RefundNote    *notes.Note    `json:"refund_note"`
	CloseAddress  curve.EcPoint  `json:"close_address"`
	CloseBlinding field.Element  `json:"close_blinding"`
	Signature     []byte         `json:"signature"`
}

// NoteSplitMsg replaces notes_in with notes_out of identical total amount
// and token (spec.md §4.2.7).
type NoteSplitMsg struct {
	NotesIn  []notes.Note `json:"notes_in"`
	NotesOut []NoteMint   `json:"notes_out"`
	Signature []byte      `json:"signature"`
}

// OpenOrderTabMsg mints a tab from input notes (spec.md §4.2.8).
type OpenOrderTabMsg struct {
	BaseNotesIn  []notes.Note  `json:"base_notes_in"`
	QuoteNotesIn []notes.Note  `json:"quote_notes_in"`
	PubKey       curve.EcPoint `json:"pub_key"`
	BaseToken    uint32        `json:"base_token"`
	QuoteToken   uint32        `json:"quote_token"`
	BaseRefund   *notes.Note   `json:"base_refund_note"`
	QuoteRefund  *notes.Note   `json:"quote_refund_note"`
	Signature    []byte        `json:"signature"`
}

// CloseOrderTabMsg burns a tab and returns its balances as two fresh notes.
type CloseOrderTabMsg struct {
	TabIdx            uint64        `json:"tab_idx"`
	BaseReturnAddress  curve.EcPoint `json:"base_return_address"`
	BaseReturnBlinding field.Element `json:"base_return_blinding"`
	QuoteReturnAddress curve.EcPoint `json:"quote_return_address"`
	QuoteReturnBlinding field.Element `json:"quote_return_blinding"`
	Signature         []byte        `json:"signature"`
}

// CloseOrderFields is the vector the register-MM and remove-liquidity
// digests fold in (spec.md §6).
type CloseOrderFields struct {
	Hash field.Element `json:"hash"`
}

// OnchainRegisterMMMsg marks an existing tab or position as smart-contract
// backed and mints its initial vLP notes (spec.md §4.2.8).
type OnchainRegisterMMMsg struct {
	IsPosition       bool             `json:"is_position"`
	TabIdx           uint64           `json:"tab_idx"`
	PositionIdx      uint64           `json:"position_idx"`
	VlpToken         uint32           `json:"vlp_token"`
	MaxVlpSupply     uint64           `json:"max_vlp_supply"`
	IndexPrice       uint64           `json:"index_price"`
	VlpDestAddress   curve.EcPoint    `json:"vlp_dest_address"`
	VlpDestBlinding  field.Element    `json:"vlp_dest_blinding"`
	CloseOrderFields CloseOrderFields `json:"close_order_fields"`
	Signature        []byte           `json:"signature"`
}

// AddLiquidityMsg mints vLP notes to a tab in proportion to its notional
// (spec.md §4.2.8).
type AddLiquidityMsg struct {
	TabIdx          uint64        `json:"tab_idx"`
	BaseNotesIn     []notes.Note  `json:"base_notes_in"`
	QuoteNotesIn    []notes.Note  `json:"quote_notes_in"`
	BaseAdd         uint64        `json:"base_add"`
	QuoteAdd        uint64        `json:"quote_add"`
	IndexPrice      uint64        `json:"index_price"`
	VlpDestAddress  curve.EcPoint `json:"vlp_dest_address"`
	VlpDestBlinding field.Element `json:"vlp_dest_blinding"`
	Signature       []byte        `json:"signature"`
}

// RemoveLiquidityMsg burns vLP notes and returns a proportional share of a
// tab's base/quote balances (spec.md §4.2.8).
type RemoveLiquidityMsg struct {
	TabIdx        uint64        `json:"tab_idx"`
	VlpNotesIn    []notes.Note  `json:"vlp_notes_in"`
	IndexPrice    uint64        `json:"index_price"`
	Slippage      uint64        `json:"slippage"`
	BaseClose     CloseOrderFields `json:"base_close"`
	QuoteClose    CloseOrderFields `json:"quote_close"`
	BaseReturnAddress  curve.EcPoint `json:"base_return_address"`
	BaseReturnBlinding field.Element `json:"base_return_blinding"`
	QuoteReturnAddress curve.EcPoint `json:"quote_return_address"`
	QuoteReturnBlinding field.Element `json:"quote_return_blinding"`
	Signature     []byte        `json:"signature"`
}

// PositionRemoveLiquidityMsg is the position-side analogue of
// RemoveLiquidityMsg (spec.md §6 "Position-remove-liquidity digest").
type PositionRemoveLiquidityMsg struct {
	PositionIdx         uint64        `json:"position_idx"`
	VlpNotesIn          []notes.Note  `json:"vlp_notes_in"`
	CollateralToken     uint32        `json:"collateral_token"`
	CollateralReturnAddress  curve.EcPoint `json:"collateral_return_address"`
	CollateralReturnBlinding field.Element `json:"collateral_return_blinding"`
	Signature           []byte        `json:"signature"`
}
