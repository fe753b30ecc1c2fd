// Command genkey generates a note/tab/position owner keypair and runs a
// sign/verify round trip over a sample deposit-style digest, the same
// generate-then-sign demo the teacher's cmd/sign-order performed against an
// EIP-712 order — adapted here to this domain's plain field-hash digests
// (spec.md §6 "Numeric conventions") instead of a typed-data order.
package main

import (
	"fmt"
	"os"

	"github.com/invisible-exchange/rollup-core/pkg/crypto"
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
)

func main() {
	fmt.Println("Generating new keypair...")
	signer, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	addr := signer.EcPoint()
	fmt.Printf("Address (X-coordinate): %s\n", addr.AddressElement().String())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	// A stand-in for a transaction digest: here we just sign the address
	// itself so this tool has no dependency on a live batch.
	digest := field.HVec(addr.AddressElement())
	fmt.Printf("Sample digest: %s\n\n", digest.String())

	sig, err := signer.Sign(curve.DigestBytes(digest))
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signature: 0x%x\n\n", sig)

	fmt.Println("Verifying signature...")
	if !curve.Verify(addr, curve.DigestBytes(digest), sig) {
		fmt.Println("signature INVALID")
		os.Exit(1)
	}
	fmt.Println("signature valid")

	recovered, err := curve.RecoverAddress(curve.DigestBytes(digest), sig)
	if err != nil {
		fmt.Printf("Error recovering address: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recovered address matches: %v\n", recovered.AddressElement().Equal(addr.AddressElement()))
}
