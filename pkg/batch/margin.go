package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// MarginChange adds or removes margin on an existing position
// (spec.md §4.2.6).
func (b *Batch) MarginChange(msg MarginChangeMsg) (*witness.Record, error) {
	const txType = "margin_change"

	pos, ok := b.lookupPosition(msg.PositionIdx)
	if !ok {
		return nil, wrapErrStateNotFound(txType, msg.PositionIdx)
	}
	if pos.PositionSize == 0 {
		return nil, newErr(Inconsistent, txType, "position is closed")
	}

	rec := witness.New(witness.MarginChange, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	if msg.AmountChange > 0 {
		amount := uint64(msg.AmountChange)
		if len(msg.NotesIn) == 0 {
			return nil, newErr(InvalidRequest, txType, "positive margin change requires notes_in")
		}
		for _, n := range msg.NotesIn {
			if _, err := b.Tokens.RequireCollateral(n.Token); err != nil {
				return nil, wrapErr(InvalidRequest, txType, "notes_in must be a collateral token", err)
			}
			if err := b.checkNoteExists(txType, n); err != nil {
				return nil, err
			}
		}
		total := sumAmounts(msg.NotesIn)
		refundAmt := uint64(0)
		if msg.RefundNote != nil {
			refundAmt = msg.RefundNote.Amount
		}
		if total < refundAmt+amount {
			return nil, newErr(Inconsistent, txType, "sum(notes_in) < refund + amount_change")
		}

		digest := field.HVec(field.FromUint64(msg.PositionIdx), field.FromInt64(msg.AmountChange), noteHashOrZero(msg.RefundNote))
		if !verifyAgainstNoteOwners(digest, msg.Signature, msg.NotesIn...) {
			return nil, newErr(InvalidRequest, txType, "signature verification failed")
		}

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
		pos.Margin += amount
	} else if msg.AmountChange < 0 {
		amount := uint64(-msg.AmountChange)
		if amount > pos.Margin {
			return nil, newErr(Inconsistent, txType, "cannot remove more margin than the position holds")
		}

		digest := field.HVec(field.FromUint64(msg.PositionIdx), field.FromInt64(msg.AmountChange))
		if !verifyAgainstKey(digest, msg.Signature, pos.PositionHeader.PositionAddress) {
			return nil, newErr(InvalidRequest, txType, "signature verification failed")
		}

		idx, err := b.SpotTree.FirstZeroIdx()
		if err != nil {
			return nil, wrapErr(Fatal, txType, "spot tree exhausted", err)
		}
		note := notes.New(idx, msg.CloseAddress, msg.CollateralToken, amount, msg.CloseBlinding)
		b.writeSpotLeaf(idx, note.Hash)
		b.Store.AddNote(note)
		rec.SetHash("margin_note_hash", note.Hash)
		rec.SetIndex("margin_note_idx", idx)

		pos.Margin -= amount
	} else {
		return nil, newErr(InvalidRequest, txType, "amount_change must be nonzero")
	}

	pos.RederivePrices()
	pos.Rehash()
	b.writePerpLeaf(pos.Index, pos.Hash)
	b.storePosition(pos)
	b.Store.AddPosition(pos)
	rec.SetHash("position_hash", pos.Hash)
	rec.SetIndex("position_idx", pos.Index)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
