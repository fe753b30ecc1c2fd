package batch_test

import (
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

func TestNoteSplitRedistributesSameTotalAndToken(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)
	bob := newTestOwner(t)

	n1 := mintNote(t, b, alice, tokens.USDC, 600, 1)
	n2 := mintNote(t, b, alice, tokens.USDC, 400, 2)

	digest := field.HVec(field.FromUint64(2), field.FromUint64(uint64(tokens.USDC)))

	rec, err := b.NoteSplit(batch.NoteSplitMsg{
		NotesIn: []notes.Note{n1, n2},
		NotesOut: []batch.NoteMint{
			{Address: alice.address(), Token: tokens.USDC, Amount: 700, Blinding: field.FromUint64(3)},
			{Address: bob.address(), Token: tokens.USDC, Amount: 300, Blinding: field.FromUint64(4)},
		},
		Signature: alice.sign(t, digest),
	})
	if err != nil {
		t.Fatalf("note split: %v", err)
	}
	if !b.SpotTree.GetLeafByIndex(n1.Index).IsZero() || !b.SpotTree.GetLeafByIndex(n2.Index).IsZero() {
		t.Error("expected both notes_in leaves to be zeroed")
	}
	idx0 := rec.Indexes["notes_out_0_idx"]
	idx1 := rec.Indexes["notes_out_1_idx"]
	if idx0 == idx1 {
		t.Fatal("expected notes_out to land at distinct fresh indices")
	}
	if !b.SpotTree.GetLeafByIndex(idx0).Equal(rec.Hashes["notes_out_0_hash"]) {
		t.Error("notes_out[0] leaf does not match its recorded hash")
	}
	if !b.SpotTree.GetLeafByIndex(idx1).Equal(rec.Hashes["notes_out_1_hash"]) {
		t.Error("notes_out[1] leaf does not match its recorded hash")
	}
}

func TestNoteSplitRejectsTotalMismatch(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)

	n1 := mintNote(t, b, alice, tokens.USDC, 600, 1)
	digest := field.HVec(field.FromUint64(1), field.FromUint64(uint64(tokens.USDC)))

	_, err := b.NoteSplit(batch.NoteSplitMsg{
		NotesIn: []notes.Note{n1},
		NotesOut: []batch.NoteMint{
			{Address: alice.address(), Token: tokens.USDC, Amount: 500, Blinding: field.FromUint64(3)},
		},
		Signature: alice.sign(t, digest),
	})
	if err == nil {
		t.Fatal("expected a rejection when sum(notes_out) != sum(notes_in)")
	}
}

func TestNoteSplitRejectsMixedTokensInNotesIn(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)

	n1 := mintNote(t, b, alice, tokens.USDC, 600, 1)
	n2 := mintNote(t, b, alice, tokens.BTC, 10, 2)
	digest := field.HVec(field.FromUint64(1), field.FromUint64(uint64(tokens.USDC)))

	_, err := b.NoteSplit(batch.NoteSplitMsg{
		NotesIn: []notes.Note{n1, n2},
		NotesOut: []batch.NoteMint{
			{Address: alice.address(), Token: tokens.USDC, Amount: 610, Blinding: field.FromUint64(3)},
		},
		Signature: alice.sign(t, digest),
	})
	if err == nil {
		t.Fatal("expected a rejection mixing tokens across notes_in")
	}
}
