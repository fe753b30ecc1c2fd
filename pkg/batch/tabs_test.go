package batch_test

import (
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

// openTestTab mints a base+quote note pair for owner and opens a tab from
// them, signed by the aggregate key of both input notes (both owned by the
// same address here, so the aggregate is owner's key doubled).
func openTestTab(t *testing.T, b *batch.Batch, owner testOwner, baseAmount, quoteAmount uint64) uint64 {
	t.Helper()
	baseNote := mintNote(t, b, owner, tokens.BTC, baseAmount, 1)
	quoteNote := mintNote(t, b, owner, tokens.USDC, quoteAmount, 2)

	header := notes.NewTabHeader(tokens.BTC, tokens.USDC, owner.address(), false, 0, 0)
	digest := field.HVec(header.Hash, field.Zero)

	rec, err := b.OpenOrderTab(batch.OpenOrderTabMsg{
		BaseNotesIn:  []notes.Note{baseNote},
		QuoteNotesIn: []notes.Note{quoteNote},
		PubKey:       owner.address(),
		BaseToken:    tokens.BTC,
		QuoteToken:   tokens.USDC,
		Signature:    combinedOwner(t, owner, owner).sign(t, digest),
	})
	if err != nil {
		t.Fatalf("open order tab: %v", err)
	}
	return rec.Indexes["tab_idx"]
}

func TestOpenOrderTabMintsATabFromBaseAndQuoteNotes(t *testing.T) {
	b, store := newTestBatch()
	alice := newTestOwner(t)

	tabIdx := openTestTab(t, b, alice, 5, 500)

	if b.SpotTree.GetLeafByIndex(tabIdx).IsZero() {
		t.Error("expected a nonzero tab leaf after open")
	}
	if store.tabsAdded != 1 {
		t.Errorf("tabsAdded = %d, want 1", store.tabsAdded)
	}
}

func TestCloseOrderTabReturnsBothBalancesAsNotes(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)

	tabIdx := openTestTab(t, b, alice, 5, 500)
	tabHash := b.SpotTree.GetLeafByIndex(tabIdx)

	digest := field.HVec(tabHash, alice.address().AddressElement(), alice.address().AddressElement())
	rec, err := b.CloseOrderTab(batch.CloseOrderTabMsg{
		TabIdx:              tabIdx,
		BaseReturnAddress:   alice.address(),
		BaseReturnBlinding:  field.FromUint64(3),
		QuoteReturnAddress:  alice.address(),
		QuoteReturnBlinding: field.FromUint64(4),
		Signature:           alice.sign(t, digest),
	})
	if err != nil {
		t.Fatalf("close order tab: %v", err)
	}
	if !b.SpotTree.GetLeafByIndex(tabIdx).IsZero() {
		t.Error("expected the closed tab's leaf to be zeroed")
	}
	baseIdx := rec.Indexes["base_return_note_idx"]
	quoteIdx := rec.Indexes["quote_return_note_idx"]
	if !b.SpotTree.GetLeafByIndex(baseIdx).Equal(rec.Hashes["base_return_note_hash"]) {
		t.Error("base return note leaf does not match its recorded hash")
	}
	if !b.SpotTree.GetLeafByIndex(quoteIdx).Equal(rec.Hashes["quote_return_note_hash"]) {
		t.Error("quote return note leaf does not match its recorded hash")
	}
}

func TestAddThenRemoveLiquidityRoundTrips(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)
	lp := newTestOwner(t)

	tabIdx := openTestTab(t, b, alice, 10, 1000)

	// a tab's vlp supply starts at zero; add_liquidity's proportional mint
	// formula needs a nonzero existing supply to scale against, so bootstrap
	// it through onchain_register_mm first, the way a tab becomes an active
	// market maker in practice.
	tab0, ok := b.LookupTab(tabIdx)
	if !ok {
		t.Fatal("expected the tab to exist right after open")
	}
	regDigest := field.HVec(tab0.TabHeader.PubKey.AddressElement(), tab0.Hash, field.FromUint64(999), field.FromUint64(0), field.Zero)
	if _, err := b.OnchainRegisterMM(batch.OnchainRegisterMMMsg{
		IsPosition:       false,
		TabIdx:           tabIdx,
		VlpToken:         999,
		IndexPrice:       1,
		VlpDestAddress:   alice.address(),
		VlpDestBlinding:  field.FromUint64(20),
		CloseOrderFields: batch.CloseOrderFields{Hash: field.Zero},
		Signature:        alice.sign(t, regDigest),
	}); err != nil {
		t.Fatalf("register mm: %v", err)
	}

	tabAfterReg, ok := b.LookupTab(tabIdx)
	if !ok || tabAfterReg.VlpSupply == 0 {
		t.Fatal("expected a nonzero vlp supply after registration")
	}

	addNote := mintNote(t, b, lp, tokens.USDC, 500, 5)
	addDigest := field.HVec(tabAfterReg.Hash, field.FromUint64(0), field.FromUint64(500))

	addRec, err := b.AddLiquidity(batch.AddLiquidityMsg{
		TabIdx:          tabIdx,
		QuoteNotesIn:    []notes.Note{addNote},
		QuoteAdd:        500,
		IndexPrice:      1,
		VlpDestAddress:  lp.address(),
		VlpDestBlinding: field.FromUint64(6),
		Signature:       lp.sign(t, addDigest),
	})
	if err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	vlpIdx := addRec.Indexes["vlp_note_idx"]
	vlpHash := addRec.Hashes["vlp_note_hash"]
	if !b.SpotTree.GetLeafByIndex(vlpIdx).Equal(vlpHash) {
		t.Error("vlp note leaf does not match its recorded hash")
	}

	tabAfterAdd, ok := b.LookupTab(tabIdx)
	if !ok {
		t.Fatal("expected the tab to still exist after adding liquidity")
	}
	addedVlp := tabAfterAdd.VlpSupply - tabAfterReg.VlpSupply
	if addedVlp == 0 {
		t.Fatal("expected a nonzero vlp mint on top of the registered supply")
	}

	mintedVlp := notes.Note{
		Index: vlpIdx, Address: lp.address(),
		Token: tabAfterAdd.TabHeader.VlpToken, Amount: addedVlp,
		Hash: vlpHash,
	}
	removeDigest := field.HVec(field.FromUint64(1), field.FromUint64(0), field.Zero, field.Zero, tabAfterAdd.TabHeader.PubKey.AddressElement())

	_, err = b.RemoveLiquidity(batch.RemoveLiquidityMsg{
		TabIdx:              tabIdx,
		VlpNotesIn:          []notes.Note{mintedVlp},
		IndexPrice:          1,
		Slippage:            0,
		BaseClose:           batch.CloseOrderFields{Hash: field.Zero},
		QuoteClose:          batch.CloseOrderFields{Hash: field.Zero},
		BaseReturnAddress:   lp.address(),
		BaseReturnBlinding:  field.FromUint64(7),
		QuoteReturnAddress:  lp.address(),
		QuoteReturnBlinding: field.FromUint64(8),
		Signature:           lp.sign(t, removeDigest),
	})
	if err != nil {
		t.Fatalf("remove liquidity: %v", err)
	}
	tabAfterRemove, ok := b.LookupTab(tabIdx)
	if !ok {
		t.Fatal("expected the tab to still exist after removing the added liquidity")
	}
	if tabAfterRemove.VlpSupply != tabAfterReg.VlpSupply {
		t.Errorf("vlp supply after removing the add = %d, want back to %d", tabAfterRemove.VlpSupply, tabAfterReg.VlpSupply)
	}
}
