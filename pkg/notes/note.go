// Package notes holds the value-bearing objects the state trees store:
// notes, order tabs, and perpetual positions, each carrying its own cached
// hash that executors must keep in sync with its tree leaf (spec.md §3).
package notes

import (
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// Note is an off-chain unspent-token-output, indexed by leaf position in the
// spot-state tree.
type Note struct {
	Index    uint64         `json:"index"`
	Address  curve.EcPoint  `json:"address"`
	Token    uint32         `json:"token"`
	Amount   uint64         `json:"amount"`
	Blinding field.Element  `json:"blinding"`
	Hash     field.Element  `json:"hash"`
}

// New constructs a Note and computes its hash. Passing amount=0 yields the
// null/empty-leaf hash (field.Zero), matching the spot tree's empty leaf.
func New(index uint64, address curve.EcPoint, token uint32, amount uint64, blinding field.Element) Note {
	n := Note{Index: index, Address: address, Token: token, Amount: amount, Blinding: blinding}
	n.Hash = n.computeHash()
	return n
}

// computeHash implements hash = H*(address.x, token, H(amount, blinding))
// when amount>0, else 0 (spec.md §3).
func (n Note) computeHash() field.Element {
	if n.Amount == 0 {
		return field.Zero
	}
	commitment := field.H(field.FromUint64(n.Amount), n.Blinding)
	return field.HVec(n.Address.AddressElement(), field.FromUint64(uint64(n.Token)), commitment)
}

// Rehash recomputes and overwrites Hash, used after mutating Amount/Blinding
// in place (e.g. constructing a PFR note from an existing one's address).
func (n *Note) Rehash() {
	n.Hash = n.computeHash()
}

// IsEmpty reports whether the note represents a spent/never-minted leaf.
func (n Note) IsEmpty() bool {
	return n.Amount == 0 || n.Hash.IsZero()
}
