package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// Deposit mints every note in msg at indices chosen by FirstZeroIdx. No
// signature check: deposits are assumed authenticated by an on-chain
// observer upstream (spec.md §4.2.1).
func (b *Batch) Deposit(msg DepositMsg) (*witness.Record, error) {
	const txType = "deposit"
	if len(msg.NotesToMint) == 0 {
		return nil, newErr(InvalidRequest, txType, "no notes to mint")
	}
	for _, m := range msg.NotesToMint {
		if _, err := b.Tokens.RequireToken(m.Token); err != nil {
			return nil, wrapErr(InvalidRequest, txType, "unknown token", err)
		}
		if m.Amount == 0 {
			return nil, newErr(InvalidRequest, txType, "deposit amount must be nonzero")
		}
	}

	rec := witness.New(witness.Deposit, msg)
	b.beginRecord(rec)
	defer b.finishRecord()
	minted := make([]notes.Note, 0, len(msg.NotesToMint))
	for i, m := range msg.NotesToMint {
		idx, err := b.SpotTree.FirstZeroIdx()
		if err != nil {
			return nil, wrapErr(Fatal, txType, "tree exhausted", err)
		}
		n := notes.New(idx, m.Address, m.Token, m.Amount, m.Blinding)
		b.writeSpotLeaf(idx, n.Hash)
		b.Store.AddNote(n)
		minted = append(minted, n)
		rec.SetHash(noteHashName(i), n.Hash)
		rec.SetIndex(noteIndexName(i), idx)
	}

	b.Witnesses = append(b.Witnesses, rec)
	recordLog(b, txType)
	return rec, nil
}

func noteHashName(i int) string {
	return "minted_note_" + itoa(uint64(i)) + "_hash"
}

func noteIndexName(i int) string {
	return "minted_note_" + itoa(uint64(i)) + "_idx"
}
