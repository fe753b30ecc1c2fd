package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// Withdrawal spends notes_in, paying out withdrawal_amount externally and
// leaving an optional refund note at notes_in[0]'s index (spec.md §4.2.2).
//
// The refund-note branch resolves the original branch-confusion bug
// (spec.md §9 Open Question 1) as: if RefundNote is present, its address
// must equal NotesIn[0].Address and its hash becomes the new leaf at
// NotesIn[0].Index; if absent, NotesIn[0].Index is zeroed like every other
// input index.
func (b *Batch) Withdrawal(msg WithdrawalMsg) (*witness.Record, error) {
	const txType = "withdrawal"
	if len(msg.NotesIn) == 0 {
		return nil, newErr(InvalidRequest, txType, "no notes_in")
	}
	if !distinctIndices(msg.NotesIn...) {
		return nil, newErr(Inconsistent, txType, "duplicate note indices")
	}
	for _, n := range msg.NotesIn {
		if n.Token != msg.Token {
			return nil, newErr(InvalidRequest, txType, "notes_in token mismatch")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}

	total := sumAmounts(msg.NotesIn)
	refundAmount := uint64(0)
	if msg.RefundNote != nil {
		refundAmount = msg.RefundNote.Amount
	}
	if total < msg.WithdrawalAmount+refundAmount || total-refundAmount != msg.WithdrawalAmount {
		return nil, newErr(Inconsistent, txType, "sum(notes_in) - refund != withdrawal_amount")
	}

	digest := field.HVec(
		field.FromUint64(msg.WithdrawalAmount),
		field.FromUint64(uint64(msg.Token)),
		msg.DestAddress.AddressElement(),
		noteHashOrZero(msg.RefundNote),
	)
	if !verifyAgainstNoteOwners(digest, msg.Signature, msg.NotesIn...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	rec := witness.New(witness.Withdrawal, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	if msg.RefundNote != nil {
		if !msg.RefundNote.Address.AddressElement().Equal(msg.NotesIn[0].Address.AddressElement()) {
			return nil, newErr(InvalidRequest, txType, "refund note address must match notes_in[0] address")
		}
		b.writeSpotLeaf(msg.NotesIn[0].Index, msg.RefundNote.Hash)
		b.Store.AddNote(*msg.RefundNote)
		rec.SetHash("refund_note_hash", msg.RefundNote.Hash)
	} else {
		b.writeSpotLeaf(msg.NotesIn[0].Index, field.Zero)
	}
	b.Store.DeleteNote(msg.NotesIn[0].Index, msg.NotesIn[0].Address.AddressElement().String())
	rec.SetIndex("notes_in_0", msg.NotesIn[0].Index)

	for i := 1; i < len(msg.NotesIn); i++ {
		n := msg.NotesIn[i]
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
		rec.SetIndex(noteIndexName(i), n.Index)
	}

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
