package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// notionalScale is the fixed-point divisor applied to base_amount*index_price
// when folding a tab's base-side value into vLP-mint notional (spec.md
// §4.2.8).
const notionalScale = 1_000_000

// OnchainRegisterMM marks an existing tab or position as smart-contract
// backed, sets its vlp_token/max_vlp_supply, and mints the initial vLP
// notes. Re-registration is idempotent (spec.md §9 Open Question 2,
// resolved per original_source/smart_contract_mms/register_mm.rs): a second
// call simply overwrites vlp_token/max_vlp_supply and leaves
// is_smart_contract at true; it does not error.
func (b *Batch) OnchainRegisterMM(msg OnchainRegisterMMMsg) (*witness.Record, error) {
	const txType = "onchain_register_mm"

	rec := witness.New(witness.OnchainRegisterMM, msg)
	b.beginRecord(rec)
	defer b.finishRecord()

	var vlpMintAmount uint64

	if msg.IsPosition {
		pos, ok := b.lookupPosition(msg.PositionIdx)
		if !ok {
			return nil, wrapErrStateNotFound(txType, msg.PositionIdx)
		}
		digest := registerMMDigest(pos.PositionHeader.PositionAddress.AddressElement(), pos.Hash, msg.VlpToken, msg.MaxVlpSupply, msg.CloseOrderFields.Hash)
		if !verifyAgainstKey(digest, msg.Signature, pos.PositionHeader.PositionAddress) {
			return nil, newErr(InvalidRequest, txType, "signature verification failed")
		}

		pos.PositionHeader.IsSmartContract = true
		pos.PositionHeader.VlpToken = msg.VlpToken
		pos.PositionHeader.MaxVlpSupply = msg.MaxVlpSupply
		vlpMintAmount = pos.Margin
		pos.VlpSupply = vlpMintAmount
		pos.PositionHeader.Rehash()
		pos.Rehash()

		b.writePerpLeaf(pos.Index, pos.Hash)
		b.storePosition(pos)
		b.Store.AddPosition(pos)
		rec.SetHash("position_hash", pos.Hash)
		rec.SetIndex("position_idx", pos.Index)
	} else {
		tab, ok := b.lookupTab(msg.TabIdx)
		if !ok || !tab.Hash.Equal(b.SpotTree.GetLeafByIndex(msg.TabIdx)) {
			return nil, wrapErrStateNotFound(txType, msg.TabIdx)
		}
		digest := registerMMDigest(tab.TabHeader.PubKey.AddressElement(), tab.Hash, msg.VlpToken, msg.MaxVlpSupply, msg.CloseOrderFields.Hash)
		if !verifyAgainstKey(digest, msg.Signature, tab.TabHeader.PubKey) {
			return nil, newErr(InvalidRequest, txType, "signature verification failed")
		}

		tab.TabHeader.IsSmartContract = true
		tab.TabHeader.VlpToken = msg.VlpToken
		tab.TabHeader.MaxVlpSupply = msg.MaxVlpSupply
		vlpMintAmount = tab.BaseAmount*msg.IndexPrice/notionalScale + tab.QuoteAmount
		tab.VlpSupply = vlpMintAmount
		tab.TabHeader.Rehash()
		tab.Rehash()

		b.writeSpotLeaf(tab.TabIdx, tab.Hash)
		b.storeTab(tab)
		b.Store.AddOrderTab(tab)
		rec.SetHash("tab_hash", tab.Hash)
		rec.SetIndex("tab_idx", tab.TabIdx)
	}

	idx, err := b.SpotTree.FirstZeroIdx()
	if err != nil {
		return nil, wrapErr(Fatal, txType, "tree exhausted", err)
	}
	vlpNote := notes.New(idx, msg.VlpDestAddress, msg.VlpToken, vlpMintAmount, msg.VlpDestBlinding)
	b.writeSpotLeaf(idx, vlpNote.Hash)
	b.Store.AddNote(vlpNote)
	rec.SetHash("vlp_note_hash", vlpNote.Hash)
	rec.SetIndex("vlp_note_idx", idx)

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}
