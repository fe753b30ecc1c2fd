package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
)

// Every signature is ECDSA over H*(...) of a fixed vector, domain-separated
// per transaction kind (spec.md §6 "Signature domain separation").

func spotOrderDigest(orderHash, refundHash, destReceivedHash field.Element) field.Element {
	return field.HVec(orderHash, refundHash, destReceivedHash)
}

func tabOpenDigest(tabHeaderHash, closeOrderFieldsHash field.Element) field.Element {
	return field.HVec(tabHeaderHash, closeOrderFieldsHash)
}

func registerMMDigest(pubKeyOrAddress field.Element, objectHash field.Element, vlpToken uint32, maxVlpSupply uint64, closeOrderFieldsHash field.Element) field.Element {
	return field.HVec(pubKeyOrAddress, objectHash, field.FromUint64(uint64(vlpToken)), field.FromUint64(maxVlpSupply), closeOrderFieldsHash)
}

func removeLiquidityDigest(indexPrice, slippage uint64, baseCloseHash, quoteCloseHash field.Element, pubKey field.Element) field.Element {
	return field.HVec(field.FromUint64(indexPrice), field.FromUint64(slippage), baseCloseHash, quoteCloseHash, pubKey)
}

func positionRemoveLiquidityDigest(collateralCloseHash field.Element, positionAddress field.Element) field.Element {
	return field.HVec(collateralCloseHash, positionAddress)
}

// noteHashOrZero returns the cached Hash of a pointer-optional note, or
// field.Zero when it is absent, matching the convention of folding a
// missing refund into the digest as zero (spec.md §6 "refund_hash").
func noteHashOrZero(n *notes.Note) field.Element {
	if n == nil {
		return field.Zero
	}
	return n.Hash
}

// verifyAgainstNoteOwners checks digest/signature against the sum of the
// given notes' addresses, the "verifying key... is the sum of input note
// addresses" rule (spec.md §6).
func verifyAgainstNoteOwners(digest field.Element, signature []byte, notesIn ...notes.Note) bool {
	pts := make([]curve.EcPoint, len(notesIn))
	for i, n := range notesIn {
		pts[i] = n.Address
	}
	key := curve.SumAddresses(pts...)
	return curve.Verify(key, curve.DigestBytes(digest), signature)
}

// verifyAgainstKey checks digest/signature against a single known key
// (tab/position pub_key, or an explicit dest address).
func verifyAgainstKey(digest field.Element, signature []byte, key curve.EcPoint) bool {
	return curve.Verify(key, curve.DigestBytes(digest), signature)
}
