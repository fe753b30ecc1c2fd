package batch_test

import (
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

func openOrderDigest(orderID uint64, refund *notes.Note) field.Element {
	refundHash := field.Zero
	if refund != nil {
		refundHash = refund.Hash
	}
	return field.HVec(field.FromUint64(orderID), refundHash)
}

func TestPerpSwapOpenThenClose(t *testing.T) {
	b, _ := newTestBatch()
	long := newTestOwner(t)
	short := newTestOwner(t)

	// margin=250,000 against notional 100*50000 = 5,000,000 is exactly BTC's
	// 20x ceiling (pkg/tokens.Default).
	longNote := mintNote(t, b, long, tokens.USDC, 250_000, 1)
	shortNote := mintNote(t, b, short, tokens.USDC, 250_000, 2)

	openMsg := batch.PerpSwapMsg{
		OrderA: batch.PerpOrder{
			OrderID: 1, EffectType: batch.Open, Side: notes.Long,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			NotesIn: []notes.Note{longNote}, InitialMargin: 250_000,
			CloseAddress: long.address(), CloseBlinding: field.FromUint64(3),
			Signature: long.sign(t, openOrderDigest(1, nil)),
		},
		OrderB: batch.PerpOrder{
			OrderID: 2, EffectType: batch.Open, Side: notes.Short,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			NotesIn: []notes.Note{shortNote}, InitialMargin: 250_000,
			CloseAddress: short.address(), CloseBlinding: field.FromUint64(4),
			Signature: short.sign(t, openOrderDigest(2, nil)),
		},
		FillSize: 100, FillPrice: 50000, CurrentFundingIdx: 0,
	}

	rec, err := b.PerpSwap(openMsg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	longIdx, ok := rec.Indexes["position_a_idx"]
	if !ok {
		t.Fatal("expected a long position index in the witness record")
	}
	shortIdx, ok := rec.Indexes["position_b_idx"]
	if !ok {
		t.Fatal("expected a short position index in the witness record")
	}

	closeMsg := batch.PerpSwapMsg{
		OrderA: batch.PerpOrder{
			OrderID: 3, EffectType: batch.Close, Side: notes.Short,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			PositionIdx: &longIdx,
			CloseAddress: long.address(), CloseBlinding: field.FromUint64(5),
		},
		OrderB: batch.PerpOrder{
			OrderID: 4, EffectType: batch.Close, Side: notes.Long,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			PositionIdx: &shortIdx,
			CloseAddress: short.address(), CloseBlinding: field.FromUint64(6),
		},
		FillSize: 100, FillPrice: 51000, CurrentFundingIdx: 0,
	}

	rec2, err := b.PerpSwap(closeMsg)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec2.Hashes["return_collateral_note_a_hash"].IsZero() {
		t.Error("expected a nonzero collateral-return note for the long's close")
	}
	if !b.PerpTree.GetLeafByIndex(longIdx).IsZero() {
		t.Error("expected the long position's leaf to be zeroed after a full close")
	}
	if !b.PerpTree.GetLeafByIndex(shortIdx).IsZero() {
		t.Error("expected the short position's leaf to be zeroed after a full close")
	}
}

func TestPerpSwapRejectsLeverageOverMax(t *testing.T) {
	b, _ := newTestBatch()
	long := newTestOwner(t)
	short := newTestOwner(t)

	longNote := mintNote(t, b, long, tokens.USDC, 10, 1)
	shortNote := mintNote(t, b, short, tokens.USDC, 1_000_000, 2)

	msg := batch.PerpSwapMsg{
		OrderA: batch.PerpOrder{
			OrderID: 1, EffectType: batch.Open, Side: notes.Long,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			NotesIn: []notes.Note{longNote}, InitialMargin: 10,
			CloseAddress: long.address(),
			Signature: long.sign(t, openOrderDigest(1, nil)),
		},
		OrderB: batch.PerpOrder{
			OrderID: 2, EffectType: batch.Open, Side: notes.Short,
			SyntheticToken: tokens.BTC, CollateralToken: tokens.USDC,
			NotesIn: []notes.Note{shortNote}, InitialMargin: 1_000_000,
			CloseAddress: short.address(),
			Signature: short.sign(t, openOrderDigest(2, nil)),
		},
		// notional = 100*50000 = 5,000,000 against margin=10 is wildly over
		// BTC's 20x ceiling (pkg/tokens.Default).
		FillSize: 100, FillPrice: 50000, CurrentFundingIdx: 0,
	}

	if _, err := b.PerpSwap(msg); err == nil {
		t.Fatal("expected a leverage-ceiling rejection")
	}

	// A rejection must leave state untouched (spec.md §4.3, §7): both
	// input notes' leaves must still match their pre-swap hashes, and no
	// position should have been created for either side.
	if got := b.SpotTree.GetLeafByIndex(longNote.Index); !got.Equal(longNote.Hash) {
		t.Errorf("long note leaf at %d = %v, want untouched hash %v", longNote.Index, got, longNote.Hash)
	}
	if got := b.SpotTree.GetLeafByIndex(shortNote.Index); !got.Equal(shortNote.Hash) {
		t.Errorf("short note leaf at %d = %v, want untouched hash %v", shortNote.Index, got, shortNote.Hash)
	}
}
