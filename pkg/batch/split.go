package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// NoteSplit replaces notes_in with notes_out of identical total amount and
// token, each placed at a fresh FirstZeroIdx slot (spec.md §4.2.7).
func (b *Batch) NoteSplit(msg NoteSplitMsg) (*witness.Record, error) {
	const txType = "note_split"

	if len(msg.NotesIn) == 0 || len(msg.NotesOut) == 0 {
		return nil, newErr(InvalidRequest, txType, "note_split requires both notes_in and notes_out")
	}
	if !distinctIndices(msg.NotesIn...) {
		return nil, newErr(Inconsistent, txType, "duplicate note indices")
	}
	token := msg.NotesIn[0].Token
	for _, n := range msg.NotesIn {
		if n.Token != token {
			return nil, newErr(InvalidRequest, txType, "notes_in token mismatch")
		}
		if err := b.checkNoteExists(txType, n); err != nil {
			return nil, err
		}
	}
	var outTotal uint64
	for _, m := range msg.NotesOut {
		if m.Token != token {
			return nil, newErr(InvalidRequest, txType, "notes_out token mismatch")
		}
		outTotal += m.Amount
	}
	if outTotal != sumAmounts(msg.NotesIn) {
		return nil, newErr(Inconsistent, txType, "sum(notes_out) != sum(notes_in)")
	}

	digest := field.HVec(field.FromUint64(uint64(len(msg.NotesOut))), field.FromUint64(uint64(token)))
	if !verifyAgainstNoteOwners(digest, msg.Signature, msg.NotesIn...) {
		return nil, newErr(InvalidRequest, txType, "signature verification failed")
	}

	rec := witness.New(witness.NoteSplit, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	for i, n := range msg.NotesIn {
		b.writeSpotLeaf(n.Index, field.Zero)
		b.Store.DeleteNote(n.Index, n.Address.AddressElement().String())
		rec.SetIndex("notes_in_"+itoa(uint64(i)), n.Index)
	}
	for i, m := range msg.NotesOut {
		idx, err := b.SpotTree.FirstZeroIdx()
		if err != nil {
			return nil, wrapErr(Fatal, txType, "tree exhausted", err)
		}
		n := notes.New(idx, m.Address, m.Token, m.Amount, m.Blinding)
		b.writeSpotLeaf(idx, n.Hash)
		b.Store.AddNote(n)
		rec.SetHash("notes_out_"+itoa(uint64(i))+"_hash", n.Hash)
		rec.SetIndex("notes_out_"+itoa(uint64(i))+"_idx", idx)
	}

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
