package batch_test

import (
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

func TestOnchainRegisterMMOnTabIsIdempotent(t *testing.T) {
	b, _ := newTestBatch()
	alice := newTestOwner(t)

	tabIdx := openTestTab(t, b, alice, 10, 1000)
	tab0, _ := b.LookupTab(tabIdx)

	regDigest := field.HVec(tab0.TabHeader.PubKey.AddressElement(), tab0.Hash, field.FromUint64(999), field.FromUint64(0), field.Zero)
	if _, err := b.OnchainRegisterMM(batch.OnchainRegisterMMMsg{
		TabIdx: tabIdx, VlpToken: 999,
		VlpDestAddress: alice.address(), VlpDestBlinding: field.FromUint64(1),
		CloseOrderFields: batch.CloseOrderFields{Hash: field.Zero},
		Signature:        alice.sign(t, regDigest),
	}); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	tab1, ok := b.LookupTab(tabIdx)
	if !ok || !tab1.TabHeader.IsSmartContract || tab1.TabHeader.VlpToken != 999 {
		t.Fatal("expected the tab to be marked smart-contract backed with vlp_token 999")
	}

	// re-registering with a different vlp_token must not error: it simply
	// overwrites vlp_token/max_vlp_supply (original_source/smart_contract_mms/register_mm.rs).
	regDigest2 := field.HVec(tab1.TabHeader.PubKey.AddressElement(), tab1.Hash, field.FromUint64(1001), field.FromUint64(0), field.Zero)
	if _, err := b.OnchainRegisterMM(batch.OnchainRegisterMMMsg{
		TabIdx: tabIdx, VlpToken: 1001,
		VlpDestAddress: alice.address(), VlpDestBlinding: field.FromUint64(2),
		CloseOrderFields: batch.CloseOrderFields{Hash: field.Zero},
		Signature:        alice.sign(t, regDigest2),
	}); err != nil {
		t.Fatalf("re-registration: %v", err)
	}
	tab2, ok := b.LookupTab(tabIdx)
	if !ok || tab2.TabHeader.VlpToken != 1001 {
		t.Fatal("expected re-registration to overwrite vlp_token")
	}
}

func TestOnchainRegisterMMOnPositionThenRemoveLiquidity(t *testing.T) {
	b, _ := newTestBatch()
	long := newTestOwner(t)
	short := newTestOwner(t)
	lp := newTestOwner(t)

	longIdx, _ := openLongShortPosition(t, b, long, short)
	pos0, ok := b.LookupPosition(longIdx)
	if !ok {
		t.Fatal("expected the long position to exist")
	}

	regDigest := field.HVec(pos0.PositionHeader.PositionAddress.AddressElement(), pos0.Hash, field.FromUint64(2001), field.FromUint64(0), field.Zero)
	regRec, err := b.OnchainRegisterMM(batch.OnchainRegisterMMMsg{
		IsPosition: true, PositionIdx: longIdx, VlpToken: 2001,
		VlpDestAddress: lp.address(), VlpDestBlinding: field.FromUint64(3),
		CloseOrderFields: batch.CloseOrderFields{Hash: field.Zero},
		Signature:        long.sign(t, regDigest),
	})
	if err != nil {
		t.Fatalf("register mm on position: %v", err)
	}
	vlpIdx := regRec.Indexes["vlp_note_idx"]
	vlpHash := regRec.Hashes["vlp_note_hash"]

	pos1, ok := b.LookupPosition(longIdx)
	if !ok || pos1.VlpSupply == 0 || !pos1.PositionHeader.IsSmartContract {
		t.Fatal("expected a smart-contract position with a nonzero vlp supply")
	}

	vlpNote := notes.Note{Index: vlpIdx, Address: lp.address(), Token: 2001, Amount: pos1.VlpSupply, Hash: vlpHash}
	removeDigest := field.HVec(field.Zero, pos1.PositionHeader.PositionAddress.AddressElement())

	rmRec, err := b.RemoveLiquidityPosition(batch.PositionRemoveLiquidityMsg{
		PositionIdx:             longIdx,
		VlpNotesIn:              []notes.Note{vlpNote},
		CollateralToken:         tokens.USDC,
		CollateralReturnAddress: lp.address(), CollateralReturnBlinding: field.FromUint64(4),
		Signature: lp.sign(t, removeDigest),
	})
	if err != nil {
		t.Fatalf("remove liquidity position: %v", err)
	}
	collateralIdx := rmRec.Indexes["collateral_return_note_idx"]
	if !b.SpotTree.GetLeafByIndex(collateralIdx).Equal(rmRec.Hashes["collateral_return_note_hash"]) {
		t.Error("collateral return note leaf does not match its recorded hash")
	}
	pos2, ok := b.LookupPosition(longIdx)
	if !ok || pos2.VlpSupply != 0 {
		t.Error("expected the position's vlp supply to be fully burned")
	}
}
