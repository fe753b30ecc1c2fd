// Package field implements the prime-field element type and the two-input
// hash primitive the rest of the settlement core builds on.
package field

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Modulus is the scalar field poseidon.Hash operates over (the BabyJubJub
// subgroup order used throughout go-iden3-crypto). Every Element is kept
// reduced modulo this value.
var Modulus = poseidon.Q

// Element is a non-negative integer modulo Modulus. The zero value is the
// field zero, which also serves as the tree's empty-leaf sentinel.
type Element struct {
	v *big.Int
}

// Zero is the additive identity / empty-leaf hash.
var Zero = Element{v: big.NewInt(0)}

// New reduces n modulo Modulus and returns the corresponding Element.
func New(n *big.Int) Element {
	v := new(big.Int).Mod(n, Modulus)
	return Element{v: v}
}

// FromUint64 lifts a plain integer into the field.
func FromUint64(n uint64) Element {
	return New(new(big.Int).SetUint64(n))
}

// FromInt64 lifts a plain signed integer into the field. Negative inputs wrap
// around Modulus the way a signed funding delta does when accumulated.
func FromInt64(n int64) Element {
	return New(big.NewInt(n))
}

// FromDecimalString parses a base-10 integer string, as used by the
// witness-record and wire-message decimal-string conventions (spec.md §6).
func FromDecimalString(s string) (Element, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Element{}, fmt.Errorf("field: invalid decimal string %q", s)
	}
	return New(n), nil
}

// Big returns the underlying big.Int. Callers must not mutate the result.
func (e Element) Big() *big.Int {
	if e.v == nil {
		return big.NewInt(0)
	}
	return e.v
}

// String renders the element as a decimal string, the serialization spec.md
// §6 mandates for every hash and address coordinate.
func (e Element) String() string {
	return e.Big().String()
}

// MarshalJSON renders the element as a quoted decimal string, matching the
// witness-record convention (spec.md §6: "decimal-string-serialized
// arbitrary-precision integers").
func (e Element) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (e *Element) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*e = Zero
		return nil
	}
	v, err := FromDecimalString(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// IsZero reports whether e is the empty-leaf sentinel.
func (e Element) IsZero() bool {
	return e.Big().Sign() == 0
}

// Equal reports field equality.
func (e Element) Equal(o Element) bool {
	return e.Big().Cmp(o.Big()) == 0
}

// Add returns e+o mod Modulus. Used for EC-point-style aggregate addresses
// is handled in pkg/curve; this Add is for plain field arithmetic (amounts
// packed into the field for hashing, funding accumulation, etc).
func (e Element) Add(o Element) Element {
	return New(new(big.Int).Add(e.Big(), o.Big()))
}

// Sub returns e-o mod Modulus.
func (e Element) Sub(o Element) Element {
	return New(new(big.Int).Sub(e.Big(), o.Big()))
}

// H is the two-input hash primitive, H(a,b), used for note/tab/position
// commitments and for folding vectors via H*.
func H(a, b Element) Element {
	out, err := poseidon.Hash([]*big.Int{a.Big(), b.Big()})
	if err != nil {
		// poseidon.Hash only fails when an input is out of range, which
		// cannot happen since every Element is already reduced mod Modulus.
		panic(fmt.Errorf("field: poseidon hash: %w", err))
	}
	return Element{v: out}
}

// HVec is the vector extension H*(x1,...,xn) = H(H(...H(x1,x2),x3)...,xn),
// exactly the recurrence in spec.md §3.
func HVec(xs ...Element) Element {
	if len(xs) == 0 {
		return Zero
	}
	acc := xs[0]
	for _, x := range xs[1:] {
		acc = H(acc, x)
	}
	return acc
}
