package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

const dust = 10

// SpotSwap executes a fill between two orders, each either note-backed or
// tab-backed, following the per-order execution rules of spec.md §4.2.3.
func (b *Batch) SpotSwap(msg SpotSwapMsg) (*witness.Record, error) {
	const txType = "swap"

	if err := b.checkSwapUniqueness(msg.OrderA, msg.OrderB); err != nil {
		return nil, err
	}

	rec := witness.New(witness.Swap, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	if err := b.executeSpotOrderSide(txType, rec, "a", msg.OrderA, msg.Fill.SpentX, sub(msg.Fill.SpentY, msg.Fill.FeeX)); err != nil {
		return nil, err
	}
	if err := b.executeSpotOrderSide(txType, rec, "b", msg.OrderB, msg.Fill.SpentY, sub(msg.Fill.SpentX, msg.Fill.FeeY)); err != nil {
		return nil, err
	}

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

func sub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// checkSwapUniqueness enforces that the union of notes_in indices of both
// orders is pairwise distinct unless the hash on both references is
// identical — a pathological duplicate, rejected (spec.md §4.2.3).
func (b *Batch) checkSwapUniqueness(a, bSide SpotOrderSide) error {
	const txType = "swap"
	var all []notes.Note
	if a.NoteOrder != nil {
		all = append(all, a.NoteOrder.NotesIn...)
	}
	if bSide.NoteOrder != nil {
		all = append(all, bSide.NoteOrder.NotesIn...)
	}
	seen := make(map[uint64]notes.Note, len(all))
	for _, n := range all {
		if prev, ok := seen[n.Index]; ok {
			if !prev.Hash.Equal(n.Hash) {
				return newErr(Inconsistent, txType, "duplicate note index with differing hash across orders")
			}
			return newErr(Inconsistent, txType, "pathological duplicate note reference across orders")
		}
		seen[n.Index] = n
	}
	return nil
}

// executeSpotOrderSide applies one side of a swap: spentAmt of its
// token_spent leaves the order, receivedAmt of its token_received is
// credited.
func (b *Batch) executeSpotOrderSide(txType string, rec *witness.Record, label string, side SpotOrderSide, spentAmt, receivedAmt uint64) error {
	switch {
	case side.TabOrder != nil:
		return b.executeTabOrderSide(txType, rec, label, *side.TabOrder, spentAmt, receivedAmt)
	case side.NoteOrder != nil:
		return b.executeNoteOrderSide(txType, rec, label, *side.NoteOrder, spentAmt, receivedAmt)
	default:
		return newErr(InvalidRequest, txType, "order side has neither a tab order nor a note order")
	}
}

func (b *Batch) executeTabOrderSide(txType string, rec *witness.Record, label string, order TabBackedOrder, spentAmt, receivedAmt uint64) error {
	tabHash := b.SpotTree.GetLeafByIndex(order.TabIdx)
	// The tree only ever stores a hash; callers resolving a tab by index
	// must have fetched its full object from the same place the tree leaf
	// was last written, since the tree itself cannot reconstruct it. The
	// dispatcher is expected to pass the resolved OrderTab in via the tab
	// registry this batch owns; we only check the hash line up here.
	tab, ok := b.lookupTab(order.TabIdx)
	if !ok || !tab.Hash.Equal(tabHash) {
		return wrapErrStateNotFound(txType, order.TabIdx)
	}

	if order.TokenSpent != tab.TabHeader.BaseToken && order.TokenSpent != tab.TabHeader.QuoteToken {
		return newErr(InvalidRequest, txType, "tab order token_spent does not match tab")
	}
	spentIsBase := order.TokenSpent == tab.TabHeader.BaseToken
	var available uint64
	if spentIsBase {
		available = tab.BaseAmount
	} else {
		available = tab.QuoteAmount
	}
	if available < spentAmt {
		return newErr(Inconsistent, txType, "tab side balance does not cover spent_x")
	}
	if order.AmountReceived > 0 && receivedAmt > order.AmountReceived+dust {
		return newErr(Inconsistent, txType, "cumulative fill exceeds amount_received+dust")
	}

	if spentIsBase {
		tab.BaseAmount -= spentAmt
		tab.QuoteAmount += receivedAmt
	} else {
		tab.QuoteAmount -= spentAmt
		tab.BaseAmount += receivedAmt
	}
	tab.Rehash()
	b.writeSpotLeaf(tab.TabIdx, tab.Hash)
	b.storeTab(tab)
	b.Store.AddOrderTab(tab)

	rec.SetHash("tab_"+label+"_hash", tab.Hash)
	rec.SetIndex("tab_"+label+"_idx", tab.TabIdx)
	return nil
}

func (b *Batch) executeNoteOrderSide(txType string, rec *witness.Record, label string, order NoteBackedOrder, spentAmt, receivedAmt uint64) error {
	pfr, hasPfr := b.PartialFills[order.OrderID]

	if !hasPfr {
		return b.executeNoteOrderFirstFill(txType, rec, label, order, spentAmt, receivedAmt)
	}
	return b.executeNoteOrderLaterFill(txType, rec, label, order, pfr, spentAmt, receivedAmt)
}

func (b *Batch) executeNoteOrderFirstFill(txType string, rec *witness.Record, label string, order NoteBackedOrder, spentAmt, receivedAmt uint64) error {
	if len(order.NotesIn) == 0 {
		return newErr(InvalidRequest, txType, "note order has no notes_in")
	}
	for _, n := range order.NotesIn {
		if n.Token != order.TokenSpent {
			return newErr(InvalidRequest, txType, "notes_in token does not match token_spent")
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
	if total < refundAmt+order.AmountSpent {
		return newErr(Inconsistent, txType, "sum(notes_in) < refund + amount_spent")
	}

	digest := spotOrderDigest(field.FromUint64(order.OrderID), noteHashOrZero(order.RefundNote), field.Zero)
	if !verifyAgainstNoteOwners(digest, order.Signature, order.NotesIn...) {
		return newErr(InvalidRequest, txType, "signature verification failed")
	}

	// swap-note: the received-token credit for this fill.
	var swapIdx uint64
	var err error
	if len(order.NotesIn) > 1 {
		swapIdx = order.NotesIn[1].Index
	} else {
		swapIdx, err = b.SpotTree.FirstZeroIdx()
		if err != nil {
			return wrapErr(Fatal, txType, "tree exhausted", err)
		}
	}
	swapNote := notes.New(swapIdx, order.DestReceivedAddress, order.TokenReceived, receivedAmt, order.DestReceivedBlinding)
	b.writeSpotLeaf(swapIdx, swapNote.Hash)
	b.Store.AddNote(swapNote)
	rec.SetHash("swap_note_"+label+"_hash", swapNote.Hash)
	rec.SetIndex("swap_note_"+label+"_idx", swapIdx)

	remaining := order.AmountSpent - spentAmt
	fullyFilled := remaining <= b.dustFor(order.TokenSpent)

	if !fullyFilled {
		pfrIdx, err := b.SpotTree.FirstZeroIdx()
		if err != nil {
			return wrapErr(Fatal, txType, "tree exhausted", err)
		}
		pfrNote := notes.New(pfrIdx, order.NotesIn[0].Address, order.TokenSpent, remaining, order.DestReceivedBlinding)
		b.writeSpotLeaf(pfrIdx, pfrNote.Hash)
		b.Store.AddNote(pfrNote)
		b.PartialFills[order.OrderID] = &PfrState{PrevPfrNote: &pfrNote, FilledAmount: spentAmt, OriginalTotal: order.AmountSpent}
		rec.SetHash("pfr_"+label+"_hash", pfrNote.Hash)
		rec.SetIndex("pfr_"+label+"_idx", pfrIdx)
	}

	// store the refund note (change from notes_in beyond the order's
	// reserved amount_spent) in place of notes_in[0]; zero the rest.
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
		if i == 1 && swapIdx == n.Index {
			continue // already overwritten with the swap note above.
		}
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
	}

	return nil
}

func (b *Batch) executeNoteOrderLaterFill(txType string, rec *witness.Record, label string, order NoteBackedOrder, pfr *PfrState, spentAmt, receivedAmt uint64) error {
	prev := pfr.PrevPfrNote
	if prev.Token != order.TokenSpent {
		return newErr(Inconsistent, txType, "prev PFR token does not match token_spent")
	}
	if !prev.Address.AddressElement().Equal(order.NotesIn[0].Address.AddressElement()) {
		return newErr(Inconsistent, txType, "prev PFR address mismatch")
	}
	if prev.Amount < spentAmt {
		return newErr(Inconsistent, txType, "prev PFR amount does not cover spent_x")
	}

	swapNote := notes.New(prev.Index, order.DestReceivedAddress, order.TokenReceived, receivedAmt, order.DestReceivedBlinding)

	remaining := prev.Amount - spentAmt
	fullyFilled := remaining <= b.dustFor(order.TokenSpent)

	if !fullyFilled {
		pfrIdx, err := b.SpotTree.FirstZeroIdx()
		if err != nil {
			return wrapErr(Fatal, txType, "tree exhausted", err)
		}
		newPfr := notes.New(pfrIdx, prev.Address, order.TokenSpent, remaining, prev.Blinding)
		b.writeSpotLeaf(prev.Index, swapNote.Hash)
		b.Store.AddNote(swapNote)
		b.writeSpotLeaf(pfrIdx, newPfr.Hash)
		b.Store.AddNote(newPfr)
		b.PartialFills[order.OrderID] = &PfrState{PrevPfrNote: &newPfr, FilledAmount: pfr.FilledAmount + spentAmt, OriginalTotal: pfr.OriginalTotal}
		rec.SetHash("pfr_"+label+"_hash", newPfr.Hash)
		rec.SetIndex("pfr_"+label+"_idx", pfrIdx)
	} else {
		b.writeSpotLeaf(prev.Index, swapNote.Hash)
		b.Store.AddNote(swapNote)
		delete(b.PartialFills, order.OrderID)
	}

	rec.SetHash("swap_note_"+label+"_hash", swapNote.Hash)
	rec.SetIndex("swap_note_"+label+"_idx", prev.Index)
	return nil
}

func (b *Batch) dustFor(token uint32) uint64 {
	info, ok := b.Tokens.Lookup(token)
	if !ok {
		return 0
	}
	return info.DustAmount
}
