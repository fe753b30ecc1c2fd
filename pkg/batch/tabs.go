package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// OpenOrderTab mints a tab from one base-token and one quote-token note set
// at a fresh FirstZeroIdx slot (spec.md §4.2.8).
func (b *Batch) OpenOrderTab(msg OpenOrderTabMsg) (*witness.Record, error) {
	const txType = "open_order_tab"

	if len(msg.BaseNotesIn) == 0 || len(msg.QuoteNotesIn) == 0 {
		return nil, newErr(InvalidRequest, txType, "open_order_tab requires both base and quote notes_in")
	}
	allNotes := append(append([]notes.Note{}, msg.BaseNotesIn...), msg.QuoteNotesIn...)
	if !distinctIndices(allNotes...) {
		return nil, newErr(Inconsistent, txType, "duplicate note indices")
	}
	for _, n := range msg.BaseNotesIn {
		if n.Token != msg.BaseToken {
			return nil, newErr(InvalidRequest, txType, "base notes_in token mismatch")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}
	for _, n := range msg.QuoteNotesIn {
		if n.Token != msg.QuoteToken {
			return nil, newErr(InvalidRequest, txType, "quote notes_in token mismatch")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}

	baseRefundAmt, quoteRefundAmt := uint64(0), uint64(0)
	if msg.BaseRefund != nil {
		baseRefundAmt = msg.BaseRefund.Amount
	}
	if msg.QuoteRefund != nil {
		quoteRefundAmt = msg.QuoteRefund.Amount
	}
	baseAmount := sumAmounts(msg.BaseNotesIn) - baseRefundAmt
	quoteAmount := sumAmounts(msg.QuoteNotesIn) - quoteRefundAmt

	header := notes.NewTabHeader(msg.BaseToken, msg.QuoteToken, msg.PubKey, false, 0, 0)
	digest := tabOpenDigest(header.Hash, field.Zero)
	if !verifyAgainstNoteOwners(digest, msg.Signature, allNotes...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	rec := witness.New(witness.OpenOrderTab, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	spendInputs := func(label string, notesIn []notes.Note, refund *notes.Note) {
		if refund != nil {
			b.writeSpotLeaf(notesIn[0].Index, refund.Hash)
			b.Store.AddNote(*refund)
		} else {
			b.writeSpotLeaf(notesIn[0].Index, field.Zero)
		}
		b.Store.DeleteNote(notesIn[0].Index, notesIn[0].Address.AddressElement().String())
		for i := 1; i < len(notesIn); i++ {
			n := notesIn[i]
			b.writeSpotLeaf(n.Index, field.Zero)
			b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
		}
	}
	spendInputs("base", msg.BaseNotesIn, msg.BaseRefund)
	spendInputs("quote", msg.QuoteNotesIn, msg.QuoteRefund)

	tabIdx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	tab := notes.NewOrderTab(tabIdx, header, baseAmount, quoteAmount, 0)
	b.writeSpotLeaf(tabIdx, tab.Hash)
	b.storeTab(tab)
	b.Store.AddOrderTab(tab)

	rec.SetHash("tab_hash", tab.Hash)
	rec.SetIndex("tab_idx", tabIdx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

// CloseOrderTab burns a tab and emits one base-token and one quote-token
// note with amounts equal to the tab's balances (spec.md §4.2.8).
func (b *Batch) CloseOrderTab(msg CloseOrderTabMsg) (*witness.Record, error) {
	const txType = "close_order_tab"

	tab, ok := b.lookupTab(msg.TabIdx)
	if !ok || !tab.Hash.Equal(b.SpotTree.GetLeafByIndex(msg.TabIdx)) {
		return nil, wrapErrStateNotFound(txType, msg.TabIdx)
	}

	digest := field.HVec(tab.Hash, msg.BaseReturnAddress.AddressElement(), msg.QuoteReturnAddress.AddressElement())
	if !verifyAgainstKey(digest, msg.Signature, tab.TabHeader.PubKey) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	rec := witness.New(witness.CloseOrderTab, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	b.writeSpotLeaf(tab.TabIdx, field.Zero)
	b.removeTab(tab.TabIdx)
	b.Store.DeleteOrderTab(tab.TabHeader.PubKey.AddressElement().String(), tab.TabIdx)
	rec.SetIndex("tab_idx", tab.TabIdx)

	baseIdx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	baseNote := notes.New(baseIdx, msg.BaseReturnAddress, tab.TabHeader.BaseToken, tab.BaseAmount, msg.BaseReturnBlinding)
	b.writeSpotLeaf(baseIdx, baseNote.Hash)
	b.Store.AddNote(baseNote)
	rec.SetHash("base_return_note_hash", baseNote.Hash)
	rec.SetIndex("base_return_note_idx", baseIdx)

	quoteIdx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	quoteNote := notes.New(quoteIdx, msg.QuoteReturnAddress, tab.TabHeader.QuoteToken, tab.QuoteAmount, msg.QuoteReturnBlinding)
	b.writeSpotLeaf(quoteIdx, quoteNote.Hash)
	b.Store.AddNote(quoteNote)
	rec.SetHash("quote_return_note_hash", quoteNote.Hash)
	rec.SetIndex("quote_return_note_idx", quoteIdx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
