package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// PerpSwap executes a fill between two perpetual orders (spec.md §4.2.4).
func (b *Batch) PerpSwap(msg PerpSwapMsg) (*witness.Record, error) {
	const txType = "perpetual_swap"

	rec := witness.New(witness.PerpetualSwap, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	prevA, err := b.applyOrderSideFunding("a", rec, msg.OrderA, msg.CurrentFundingIdx)
	if err != nil {
		return nil, err
	}
	prevB, err := b.applyOrderSideFunding("b", rec, msg.OrderB, msg.CurrentFundingIdx)
	if err != nil {
		return nil, err
	}

	if err := b.executePerpOrderSide(txType, rec, "a", msg.OrderA, prevA, msg.FillSize, msg.FillPrice); err != nil {
		return nil, err
	}
	if err := b.executePerpOrderSide(txType, rec, "b", msg.OrderB, prevB, msg.FillSize, msg.FillPrice); err != nil {
		return nil, err
	}

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

// applyOrderSideFunding folds outstanding funding into an order's existing
// position, if any, before any other mutation touches it (spec.md §4.2.4
// step 1). Returns the position with funding already applied, for the
// Open/Modify/Close step that follows.
func (b *Batch) applyOrderSideFunding(label string, rec *witness.Record, order PerpOrder, currentFundingIdx uint64) (*notes.PerpPosition, error) {
	const txType = "perpetual_swap"
	if order.PositionIdx == nil {
		return nil, nil
	}
	pos, ok := b.lookupPosition(*order.PositionIdx)
	if !ok {
		if order.EffectType == Open {
			return nil, nil
		}
		return nil, wrapErrStateNotFound(txType, *order.PositionIdx)
	}
	prevFundingIdx := pos.LastFundingIdx
	if _, err := b.Funding.ApplyFunding(&pos, currentFundingIdx); err != nil {
		return nil, wrapErr(FundingOutOfRange, txType, "funding application failed", err)
	}
	b.storePosition(pos)
	rec.FundingIndexes = &witness.FundingIndexes{PrevFundingIdx: prevFundingIdx, NewFundingIdx: currentFundingIdx}
	return &pos, nil
}

func (b *Batch) executePerpOrderSide(txType string, rec *witness.Record, label string, order PerpOrder, prevPos *notes.PerpPosition, fillSize, fillPrice uint64) error {
	switch order.EffectType {
	case Open:
		return b.executePerpOpen(txType, rec, label, order, prevPos, fillSize, fillPrice)
	case Modify:
		return b.executePerpModify(txType, rec, label, order, prevPos, fillSize, fillPrice)
	case Close:
		return b.executePerpClose(txType, rec, label, order, prevPos, fillSize, fillPrice)
	default:
		return newErr(InvalidRequest, txType, "unknown position_effect_type")
	}
}

// executePerpOpen spends notes_in exactly like a note-backed spot swap,
// then either creates a new position or adds size to an existing one,
// enforcing the leverage ceiling (spec.md §4.2.4 step 2). Every check —
// note validity, signature, leverage — runs before any leaf is written, so
// a rejection here leaves both trees untouched (spec.md §4.3, §7), the same
// validate-fully-then-mutate ordering margin.go follows.
func (b *Batch) executePerpOpen(txType string, rec *witness.Record, label string, order PerpOrder, prevPos *notes.PerpPosition, fillSize, fillPrice uint64) error {
	if err := b.validateOpenOrderNotes(txType, order); err != nil {
		return err
	}

	info, err := b.Tokens.RequireSynthetic(order.SyntheticToken)
	if err != nil {
		return wrapErr(InvalidRequest, txType, "unknown synthetic token", err)
	}

	isNew := prevPos == nil || prevPos.PositionSize == 0
	var pos notes.PerpPosition
	if isNew {
		header := notes.NewPositionHeader(order.SyntheticToken, true, order.CloseAddress, 0, 0, false)
		pos = notes.NewPosition(0, header, order.Side, fillSize, order.InitialMargin, fillPrice, 0)
	} else {
		pos = *prevPos
		newSize := pos.PositionSize + fillSize
		// size-weighted average entry price.
		pos.EntryPrice = (pos.EntryPrice*pos.PositionSize + fillPrice*fillSize) / newSize
		pos.PositionSize = newSize
		pos.Margin += order.InitialMargin
		pos.RederivePrices()
		pos.Rehash()
	}

	leverage := pos.Leverage(tokens.LeverageDecimals)
	maxLev := b.Tokens.MaxLeverage(order.SyntheticToken, pos.PositionSize)
	if maxLev > 0 && leverage > maxLev {
		return newErr(Inconsistent, txType, "leverage exceeds max_leverage for "+info.Symbol)
	}

	// Validation is complete; acquire a fresh index (if needed) and commit.
	if isNew {
		idx, err := b.PerpTree.FirstZeroIdx()
		if err != nil {
			return wrapErr(Fatal, txType, "perp tree exhausted", err)
		}
		pos.Index = idx
		pos.Rehash()
	}

	b.commitOpenOrderNotes(rec, label, order)

	b.writePerpLeaf(pos.Index, pos.Hash)
	b.storePosition(pos)
	b.Store.AddPosition(pos)
	rec.SetHash("position_"+label+"_hash", pos.Hash)
	rec.SetIndex("position_"+label+"_idx", pos.Index)
	return nil
}

// executePerpModify adjusts an existing position's size at the fill price
// and recomputes a size-weighted average entry price (spec.md §4.2.4
// step 3).
func (b *Batch) executePerpModify(txType string, rec *witness.Record, label string, order PerpOrder, prevPos *notes.PerpPosition, fillSize, fillPrice uint64) error {
	if prevPos == nil {
		return wrapErrStateNotFound(txType, derefIdx(order.PositionIdx))
	}
	pos := *prevPos
	newSize := pos.PositionSize + fillSize
	pos.EntryPrice = (pos.EntryPrice*pos.PositionSize + fillPrice*fillSize) / newSize
	pos.PositionSize = newSize
	pos.RederivePrices()
	pos.Rehash()

	b.writePerpLeaf(pos.Index, pos.Hash)
	b.storePosition(pos)
	b.Store.AddPosition(pos)
	rec.SetHash("position_"+label+"_hash", pos.Hash)
	rec.SetIndex("position_"+label+"_idx", pos.Index)
	return nil
}

// executePerpClose computes realised P&L, returns collateral to the closer,
// and removes the position if the remaining size is dust (spec.md §4.2.4
// step 4).
func (b *Batch) executePerpClose(txType string, rec *witness.Record, label string, order PerpOrder, prevPos *notes.PerpPosition, fillSize, fillPrice uint64) error {
	if prevPos == nil {
		return wrapErrStateNotFound(txType, derefIdx(order.PositionIdx))
	}
	pos := *prevPos
	if fillSize > pos.PositionSize {
		return newErr(Inconsistent, txType, "close size exceeds position size")
	}

	sign := int64(1)
	if pos.OrderSide == notes.Short {
		sign = -1
	}
	pnl := sign * (int64(fillPrice) - int64(pos.EntryPrice)) * int64(fillSize)
	closedMarginShare := pos.Margin * fillSize / pos.PositionSize
	returnAmount := int64(closedMarginShare) + pnl
	if returnAmount < 0 {
		returnAmount = 0
	}

	idx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return wrapErr(Fatal, txType, "spot tree exhausted", err)
	}
	collateralToken := order.CollateralToken
	returnNote := notes.New(idx, order.CloseAddress, collateralToken, uint64(returnAmount), order.CloseBlinding)
	b.writeSpotLeaf(idx, returnNote.Hash)
	b.Store.AddNote(returnNote)
	rec.SetHash("return_collateral_note_"+label+"_hash", returnNote.Hash)
	rec.SetIndex("return_collateral_note_"+label+"_idx", idx)

	pos.PositionSize -= fillSize
	pos.Margin -= closedMarginShare

	if b.dustFor(pos.PositionHeader.SyntheticToken) >= pos.PositionSize || pos.PositionSize == 0 {
		b.writePerpLeaf(pos.Index, field.Zero)
		b.removePosition(pos.Index)
		b.Store.DeletePosition(pos.PositionHeader.PositionAddress.AddressElement().String(), pos.Index)
	} else {
		pos.RederivePrices()
		pos.Rehash()
		b.writePerpLeaf(pos.Index, pos.Hash)
		b.storePosition(pos)
		b.Store.AddPosition(pos)
		rec.SetHash("position_"+label+"_hash", pos.Hash)
	}
	rec.SetIndex("position_"+label+"_idx", pos.Index)
	return nil
}

// validateOpenOrderNotes checks an Open-effect order's notes_in exactly
// like the spot-swap note-backed first-fill path (spec.md §4.2.4 step 2
// "identical note-spending mechanics to the spot swap note-backed path"),
// without writing anything — callers must run this to completion, including
// the leverage check on the resulting position, before calling
// commitOpenOrderNotes.
func (b *Batch) validateOpenOrderNotes(txType string, order PerpOrder) error {
	if len(order.NotesIn) == 0 {
		return nil // Modify/Close orders and additive-margin Opens carry no notes.
	}
	for _, n := range order.NotesIn {
		if n.Token != order.CollateralToken {
			return newErr(InvalidRequest, txType, "notes_in token must be the collateral token")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return err
		}
	}
	total := sumAmounts(order.NotesIn)
	refundAmt := uint64(0)
	if order.RefundNote != nil {
		refundAmt = order.RefundNote.Amount
	}
	if total < refundAmt+order.InitialMargin {
		return newErr(Inconsistent, txType, "sum(notes_in) < refund + initial_margin")
	}

	digest := field.HVec(field.FromUint64(order.OrderID), noteHashOrZero(order.RefundNote))
	if !verifyAgainstNoteOwners(digest, order.Signature, order.NotesIn...) {
		return newErr(InvalidRequest, txType, "signature verification failed")
	}
	return nil
}

// commitOpenOrderNotes spends notes_in after validateOpenOrderNotes and the
// leverage check have both already passed.
func (b *Batch) commitOpenOrderNotes(rec *witness.Record, label string, order PerpOrder) {
	if len(order.NotesIn) == 0 {
		return
	}
	if order.RefundNote != nil {
		b.writeSpotLeaf(order.NotesIn[0].Index, order.RefundNote.Hash)
		b.Store.AddNote(*order.RefundNote)
	} else {
		b.writeSpotLeaf(order.NotesIn[0].Index, field.Zero)
	}
	b.Store.DeleteNote(order.NotesIn[0].Index, order.NotesIn[0].Address.AddressElement().String())
	rec.SetIndex("notes_in_"+label+"_0", order.NotesIn[0].Index)

	for i := 1; i < len(order.NotesIn); i++ {
		n := order.NotesIn[i]
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
	}
}

func derefIdx(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}
