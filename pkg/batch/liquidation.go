package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// Liquidation validates and executes a liquidator order against a target
// position (spec.md §4.2.5).
func (b *Batch) Liquidation(msg LiquidationOrderMsg) (*witness.Record, error) {
	const txType = "liquidation_swap"

	if !distinctIndices(msg.NotesIn...) {
		return nil, newErr(Inconsistent, txType, "duplicate note indices")
	}
	for _, n := range msg.NotesIn {
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}
	total := sumAmounts(msg.NotesIn)
	refundAmt := uint64(0)
	if msg.RefundNote != nil {
		refundAmt = msg.RefundNote.Amount
	}
	if total-refundAmt != msg.InitialMargin {
		return nil, newErr(Inconsistent, txType, "sum(notes_in) - refund != initial_margin")
	}

	pos, ok := b.lookupPosition(msg.PositionIdx)
	if !ok || !pos.Hash.Equal(msg.Position.Hash) {
		return nil, wrapErrStateNotFound(txType, msg.PositionIdx)
	}
	if pos.OrderSide == msg.Side {
		return nil, newErr(Inconsistent, txType, "liquidator must take the opposite side of the position")
	}
	if msg.Side == notes.Long && msg.MarketPrice > msg.OrderPrice {
		return nil, newErr(Inconsistent, txType, "long liquidator requires market_price <= order_price")
	}
	if msg.Side == notes.Short && msg.MarketPrice < msg.OrderPrice {
		return nil, newErr(Inconsistent, txType, "short liquidator requires market_price >= order_price")
	}

	prevFundingIdx := pos.LastFundingIdx
	if _, err := b.Funding.ApplyFunding(&pos, msg.Funding.CurrentFundingIdx); err != nil {
		return nil, wrapErr(FundingOutOfRange, txType, "funding application failed", err)
	}

	if !pos.IsLiquidatable(msg.MarketPrice) {
		return nil, newErr(Inconsistent, txType, "position is not liquidatable at market_price")
	}

	result := pos.LiquidatePosition(msg.MarketPrice)

	// Build the liquidator's candidate position and check its leverage
	// before committing anything: a rejection here must leave the old
	// position, the liquidator's notes, and the insurance fund untouched
	// (spec.md §4.3, §7), the same validate-fully-then-mutate ordering
	// margin.go and executePerpOpen follow.
	liquidatorMargin := msg.InitialMargin + result.LiquidatorFee
	header := notes.NewPositionHeader(pos.PositionHeader.SyntheticToken, true, msg.NotesIn[0].Address, 0, 0, false)
	liquidatorPos := notes.NewPosition(0, header, msg.Side, result.LiquidatedSize, liquidatorMargin, msg.MarketPrice, msg.Funding.CurrentFundingIdx)

	leverage := liquidatorPos.Leverage(tokens.LeverageDecimals)
	maxLev := b.Tokens.MaxLeverage(pos.PositionHeader.SyntheticToken, liquidatorPos.PositionSize)
	if maxLev > 0 && leverage > maxLev {
		return nil, newErr(Inconsistent, txType, "liquidator position exceeds max_leverage")
	}

	newIdx, err := b.PerpTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "perp tree exhausted", err)
	}
	liquidatorPos.Index = newIdx
	liquidatorPos.Rehash()

	// Validation is complete; everything below this line commits.
	rec := witness.New(witness.LiquidationSwap, msg)
	b.beginRecord(rec)
	defer b.finishRecord()
	rec.FundingIndexes = &witness.FundingIndexes{PrevFundingIdx: prevFundingIdx, NewFundingIdx: msg.Funding.CurrentFundingIdx}

	var insuranceDelta uint64
	if result.LeftoverCollateral < 0 {
		b.InsuranceFund += result.LeftoverCollateral
		insuranceDelta = uint64(-result.LeftoverCollateral)
	}
	rec.SetIndex("insurance_fund_delta", insuranceDelta)

	// spend the liquidator's notes_in exactly like note-backed spending.
	if msg.RefundNote != nil {
		b.writeSpotLeaf(msg.NotesIn[0].Index, msg.RefundNote.Hash)
		b.Store.AddNote(*msg.RefundNote)
	} else {
		b.writeSpotLeaf(msg.NotesIn[0].Index, field.Zero)
	}
	b.Store.DeleteNote(msg.NotesIn[0].Index, msg.NotesIn[0].Address.AddressElement().String())
	for i := 1; i < len(msg.NotesIn); i++ {
		n := msg.NotesIn[i]
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
	}

	// the old position: partial -> reduced leaf, full -> zero.
	pos.PositionSize -= result.LiquidatedSize
	if pos.PositionSize == 0 {
		b.writePerpLeaf(pos.Index, field.Zero)
		b.removePosition(pos.Index)
		b.Store.DeletePosition(pos.PositionHeader.PositionAddress.AddressElement().String(), pos.Index)
	} else {
		pos.Margin = uint64(maxInt64(0, int64(pos.Margin)-result.LeftoverCollateral-int64(result.LiquidatorFee)))
		pos.RederivePrices()
		pos.Rehash()
		b.writePerpLeaf(pos.Index, pos.Hash)
		b.storePosition(pos)
		b.Store.AddPosition(pos)
		rec.SetHash("position_hash", pos.Hash)
	}
	rec.SetIndex("position_idx", pos.Index)

	b.writePerpLeaf(liquidatorPos.Index, liquidatorPos.Hash)
	b.storePosition(liquidatorPos)
	b.Store.AddPosition(liquidatorPos)
	rec.SetHash("liquidator_position_hash", liquidatorPos.Hash)
	rec.SetIndex("liquidator_position_idx", liquidatorPos.Index)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
