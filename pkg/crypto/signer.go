// Package crypto supplies the secp256k1 signing half that pairs with
// pkg/curve's verify-only EcPoint: every note/tab/position owner key in this
// repo is an EcPoint, and this is how a test (or an off-chain wallet, in the
// reference deployment) produces a signature curve.Verify accepts for it.
// Adapted from the teacher's pkg/crypto.Signer, which derived a go-ethereum
// common.Address by Keccak256-hashing the public key; this domain's
// addresses are the raw X-coordinate instead (curve.EcPoint.AddressElement),
// so EcPoint() here returns the point directly rather than a hashed address.
package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/invisible-exchange/rollup-core/pkg/curve"
)

// Signer holds a secp256k1 key pair and signs 32-byte digests.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	point      curve.EcPoint
}

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		point:      curve.FromPublicKey(&privateKey.PublicKey),
	}, nil
}

// FromPrivateKeyHex loads a Signer from a hex-encoded private key ("0x..."
// or bare hex, 64 chars), used by tests that need a fixed, reproducible
// owner key rather than a freshly generated one.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		point:      curve.FromPublicKey(&privateKey.PublicKey),
	}, nil
}

// EcPoint returns the signer's address, the value stored as a note/tab/
// position owner.
func (s *Signer) EcPoint() curve.EcPoint {
	return s.point
}

// PrivateKeyHex returns the private key as hex (without 0x prefix).
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest and returns a 65-byte [R||S||V] signature
// verifiable by curve.Verify against s.EcPoint().
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return sig, nil
}
