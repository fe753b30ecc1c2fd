package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// AddLiquidity mints vLP notes to a tab in proportion to its notional
// (spec.md §4.2.8): vlp_amount = (base_add*index_price/notionalScale +
// quote_add) * vlp_supply / tab_nominal, where tab_nominal =
// base_amount*index_price/notionalScale + quote_amount. A tab whose
// nominal is zero mints the added nominal itself.
func (b *Batch) AddLiquidity(msg AddLiquidityMsg) (*witness.Record, error) {
	const txType = "add_liquidity"

	tab, ok := b.lookupTab(msg.TabIdx)
	if !ok || !tab.Hash.Equal(b.SpotTree.GetLeafByIndex(msg.TabIdx)) {
		return nil, wrapErrStateNotFound(txType, msg.TabIdx)
	}

	allNotes := append(append([]notes.Note{}, msg.BaseNotesIn...), msg.QuoteNotesIn...)
	if !distinctIndices(allNotes...) {
		return nil, newErr(Inconsistent, txType, "duplicate note indices")
	}
	for _, n := range allNotes {
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}

	digest := field.HVec(tab.Hash, field.FromUint64(msg.BaseAdd), field.FromUint64(msg.QuoteAdd))
	if !verifyAgainstNoteOwners(digest, msg.Signature, allNotes...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	tabNominal := tab.BaseAmount*msg.IndexPrice/notionalScale + tab.QuoteAmount
	var vlpAmount uint64
	if tabNominal == 0 {
		vlpAmount = msg.BaseAdd*msg.IndexPrice/notionalScale + msg.QuoteAdd
	} else {
		vlpAmount = (msg.BaseAdd*msg.IndexPrice/notionalScale + msg.QuoteAdd) * tab.VlpSupply / tabNominal
	}

	rec := witness.New(witness.AddLiquidity, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	spendInputs := func(notesIn []notes.Note) {
		if len(notesIn) == 0 {
			return
		}
		b.writeSpotLeaf(notesIn[0].Index, field.Zero)
		b.Store.DeleteNote(notesIn[0].Index, notesIn[0].Address.AddressElement().String())
		for i := 1; i < len(notesIn); i++ {
			n := notesIn[i]
			b.writeSpotLeaf(n.Index, field.Zero)
			b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
		}
	}
	spendInputs(msg.BaseNotesIn)
	spendInputs(msg.QuoteNotesIn)

	tab.BaseAmount += msg.BaseAdd
	tab.QuoteAmount += msg.QuoteAdd
	tab.VlpSupply += vlpAmount
	tab.Rehash()
	b.writeSpotLeaf(tab.TabIdx, tab.Hash)
	b.storeTab(tab)
	b.Store.AddOrderTab(tab)
	rec.SetHash("tab_hash", tab.Hash)
	rec.SetIndex("tab_idx", tab.TabIdx)

	idx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	vlpNote := notes.New(idx, msg.VlpDestAddress, tab.TabHeader.VlpToken, vlpAmount, msg.VlpDestBlinding)
	b.writeSpotLeaf(idx, vlpNote.Hash)
	b.Store.AddNote(vlpNote)
	rec.SetHash("vlp_note_hash", vlpNote.Hash)
	rec.SetIndex("vlp_note_idx", idx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

// RemoveLiquidity burns vLP notes and returns a proportional share of a
// tab's base/quote balances, symmetric to AddLiquidity up to per-token dust
// slack (spec.md §4.2.8).
func (b *Batch) RemoveLiquidity(msg RemoveLiquidityMsg) (*witness.Record, error) {
	const txType = "remove_liquidity"

	tab, ok := b.lookupTab(msg.TabIdx)
	if !ok || !tab.Hash.Equal(b.SpotTree.GetLeafByIndex(msg.TabIdx)) {
		return nil, wrapErrStateNotFound(txType, msg.TabIdx)
	}
	if !distinctIndices(msg.VlpNotesIn...) {
		return nil, newErr(Inconsistent, txType, "duplicate vlp note indices")
	}
	for _, n := range msg.VlpNotesIn {
		if n.Token != tab.TabHeader.VlpToken {
			return nil, newErr(InvalidRequest, txType, "vlp_notes_in token does not match tab's vlp_token")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}
	vlpAmount := sumAmounts(msg.VlpNotesIn)
	if vlpAmount > tab.VlpSupply {
		return nil, newErr(Inconsistent, txType, "vlp amount exceeds outstanding supply")
	}

	digest := removeLiquidityDigest(msg.IndexPrice, msg.Slippage, msg.BaseClose.Hash, msg.QuoteClose.Hash, tab.TabHeader.PubKey.AddressElement())
	if !verifyAgainstNoteOwners(digest, msg.Signature, msg.VlpNotesIn...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	baseOut := tab.BaseAmount * vlpAmount / tab.VlpSupply
	quoteOut := tab.QuoteAmount * vlpAmount / tab.VlpSupply

	rec := witness.New(witness.RemoveLiquidity, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	b.writeSpotLeaf(msg.VlpNotesIn[0].Index, field.Zero)
	b.Store.DeleteNote(msg.VlpNotesIn[0].Index, msg.VlpNotesIn[0].Address.AddressElement().String())
	for i := 1; i < len(msg.VlpNotesIn); i++ {
		n := msg.VlpNotesIn[i]
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
	}

	tab.BaseAmount -= baseOut
	tab.QuoteAmount -= quoteOut
	tab.VlpSupply -= vlpAmount
	tab.Rehash()
	b.writeSpotLeaf(tab.TabIdx, tab.Hash)
	b.storeTab(tab)
	b.Store.AddOrderTab(tab)
	rec.SetHash("tab_hash", tab.Hash)
	rec.SetIndex("tab_idx", tab.TabIdx)

	baseIdx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	baseNote := notes.New(baseIdx, msg.BaseReturnAddress, tab.TabHeader.BaseToken, baseOut, msg.BaseReturnBlinding)
	b.writeSpotLeaf(baseIdx, baseNote.Hash)
	b.Store.AddNote(baseNote)
	rec.SetHash("base_return_note_hash", baseNote.Hash)
	rec.SetIndex("base_return_note_idx", baseIdx)

	quoteIdx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	quoteNote := notes.New(quoteIdx, msg.QuoteReturnAddress, tab.TabHeader.QuoteToken, quoteOut, msg.QuoteReturnBlinding)
	b.writeSpotLeaf(quoteIdx, quoteNote.Hash)
	b.Store.AddNote(quoteNote)
	rec.SetHash("quote_return_note_hash", quoteNote.Hash)
	rec.SetIndex("quote_return_note_idx", quoteIdx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

// RemoveLiquidityPosition is the position-side analogue of RemoveLiquidity:
// it burns vLP notes minted against a smart-contract-backed position and
// returns a proportional share of its margin as a collateral note
// (spec.md §6 "Position-remove-liquidity digest", §4.2.8).
func (b *Batch) RemoveLiquidityPosition(msg PositionRemoveLiquidityMsg) (*witness.Record, error) {
	const txType = "remove_liquidity"

	pos, ok := b.lookupPosition(msg.PositionIdx)
	if !ok {
		return nil, wrapErrStateNotFound(txType, msg.PositionIdx)
	}
	if !pos.PositionHeader.IsSmartContract || pos.PositionHeader.VlpToken == 0 {
		return nil, newErr(Inconsistent, txType, "position is not a registered market maker")
	}
	if !distinctIndices(msg.VlpNotesIn...) {
		return nil, newErr(Inconsistent, txType, "duplicate vlp note indices")
	}
	for _, n := range msg.VlpNotesIn {
		if n.Token != pos.PositionHeader.VlpToken {
			return nil, newErr(InvalidRequest, txType, "vlp_notes_in token does not match position's vlp_token")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}
	vlpAmount := sumAmounts(msg.VlpNotesIn)
	if vlpAmount > pos.VlpSupply {
		return nil, newErr(Inconsistent, txType, "vlp amount exceeds outstanding supply")
	}

	digest := positionRemoveLiquidityDigest(field.Zero, pos.PositionHeader.PositionAddress.AddressElement())
	if !verifyAgainstNoteOwners(digest, msg.Signature, msg.VlpNotesIn...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	collateralOut := pos.Margin * vlpAmount / pos.VlpSupply

	rec := witness.New(witness.RemoveLiquidity, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	b.writeSpotLeaf(msg.VlpNotesIn[0].Index, field.Zero)
	b.Store.DeleteNote(msg.VlpNotesIn[0].Index, msg.VlpNotesIn[0].Address.AddressElement().String())
	for i := 1; i < len(msg.VlpNotesIn); i++ {
		n := msg.VlpNotesIn[i]
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
	}

	pos.Margin -= collateralOut
	pos.VlpSupply -= vlpAmount
	pos.RederivePrices()
	pos.Rehash()
	b.writePerpLeaf(pos.Index, pos.Hash)
	b.storePosition(pos)
	b.Store.AddPosition(pos)
	rec.SetHash("position_hash", pos.Hash)
	rec.SetIndex("position_idx", pos.Index)

	idx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "spot tree exhausted", err)
	}
	collateralNote := notes.New(idx, msg.CollateralReturnAddress, msg.CollateralToken, collateralOut, msg.CollateralReturnBlinding)
	b.writeSpotLeaf(idx, collateralNote.Hash)
	b.Store.AddNote(collateralNote)
	rec.SetHash("collateral_return_note_hash", collateralNote.Hash)
	rec.SetIndex("collateral_return_note_idx", idx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
