// Package curve provides the elliptic-curve point type used for note/tab/
// position owner addresses, and the ECDSA verify that checks signatures
// against them. It reuses the teacher's secp256k1 stack (go-ethereum/crypto)
// rather than inventing a second curve: addresses, signing, and recovery are
// all secp256k1, matching pkg/crypto.Signer.
package curve

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// EcPoint is a point (X,Y) on secp256k1. The identity point is (0,0) by
// serialization convention (spec.md §3); it never appears as a live owner key.
type EcPoint struct {
	X *big.Int
	Y *big.Int
}

// Identity is the EcPoint zero value per the (0,0) serialization convention.
var Identity = EcPoint{X: big.NewInt(0), Y: big.NewInt(0)}

// IsIdentity reports whether p is the (0,0) sentinel.
func (p EcPoint) IsIdentity() bool {
	return p.X.Sign() == 0 && p.Y.Sign() == 0
}

// ecPointWire mirrors the original backend's serde shape for EcPoint: x/y as
// quoted decimal strings rather than bare JSON numbers (spec.md §6).
type ecPointWire struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// MarshalJSON renders the point as {"x":"...","y":"..."}.
func (p EcPoint) MarshalJSON() ([]byte, error) {
	x, y := p.X, p.Y
	if x == nil {
		x = big.NewInt(0)
	}
	if y == nil {
		y = big.NewInt(0)
	}
	return json.Marshal(ecPointWire{X: x.String(), Y: y.String()})
}

// UnmarshalJSON parses the {"x":"...","y":"..."} wire shape.
func (p *EcPoint) UnmarshalJSON(b []byte) error {
	var w ecPointWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	x, ok := new(big.Int).SetString(w.X, 10)
	if !ok {
		return fmt.Errorf("curve: invalid x coordinate %q", w.X)
	}
	y, ok := new(big.Int).SetString(w.Y, 10)
	if !ok {
		return fmt.Errorf("curve: invalid y coordinate %q", w.Y)
	}
	p.X, p.Y = x, y
	return nil
}

// AddressElement returns the X coordinate as a field.Element, the value every
// note/tab/position hash folds in as the owning address.
func (p EcPoint) AddressElement() field.Element {
	return field.New(p.X)
}

// FromPublicKey converts a secp256k1 public key into an EcPoint.
func FromPublicKey(pub *ecdsa.PublicKey) EcPoint {
	return EcPoint{X: new(big.Int).Set(pub.X), Y: new(big.Int).Set(pub.Y)}
}

// PublicKey reconstructs an *ecdsa.PublicKey for use with ethcrypto helpers.
func (p EcPoint) PublicKey() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: ethcrypto.S256(), X: p.X, Y: p.Y}
}

// Add performs secp256k1 point addition. This is how the core derives the
// verifying key for tab/position flows signed by the set of note owners
// (spec.md §6: "the sum of input note addresses"), instead of aliasing a
// single tab-owned key.
func Add(a, b EcPoint) EcPoint {
	if a.IsIdentity() {
		return b
	}
	if b.IsIdentity() {
		return a
	}
	x, y := ethcrypto.S256().Add(a.X, a.Y, b.X, b.Y)
	return EcPoint{X: x, Y: y}
}

// SumAddresses folds Add over every point, used whenever a digest must be
// verified against the combined key of several note/position owners.
func SumAddresses(points ...EcPoint) EcPoint {
	acc := Identity
	for _, p := range points {
		acc = Add(acc, p)
	}
	return acc
}

// Verify checks an ECDSA signature (65-byte [R||S||V], go-ethereum's wire
// format) against digest under the public key pt. digest must be 32 bytes;
// callers derive it from a field.Element via DigestBytes.
func Verify(pt EcPoint, digest []byte, signature []byte) bool {
	if len(signature) != 65 || len(digest) != 32 {
		return false
	}
	if pt.IsIdentity() {
		return false
	}
	// recoverable-signature form drops V for the pairwise curve check.
	sig := signature[:64]
	return ethcrypto.VerifySignature(ethcrypto.FromECDSAPub(pt.PublicKey()), digest, sig)
}

// DigestBytes renders a field element as a 32-byte big-endian digest
// suitable for ECDSA sign/verify/recover, the same way pkg/crypto.Signer
// expects a 32-byte hash.
func DigestBytes(h field.Element) []byte {
	b := h.Big().Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// RecoverAddress recovers the signer's EcPoint from a digest and a 65-byte
// [R||S||V] signature, returning the full point rather than a derived
// 20-byte address.
func RecoverAddress(digest, signature []byte) (EcPoint, error) {
	if len(signature) != 65 {
		return EcPoint{}, fmt.Errorf("curve: invalid signature length %d", len(signature))
	}
	pub, err := ethcrypto.SigToPub(digest, signature)
	if err != nil {
		return EcPoint{}, fmt.Errorf("curve: recover: %w", err)
	}
	return FromPublicKey(pub), nil
}
