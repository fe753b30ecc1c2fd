package batch_test

import (
	"fmt"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/crypto"
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

// recordingStore is a StoreQueue that only counts calls, standing in for
// the durable pebble-backed queue in tests that only care about tree and
// witness behavior (spec.md §6 "Persisted state layout").
type recordingStore struct {
	notesAdded    int
	notesDeleted  int
	tabsAdded     int
	positionsAdded int
}

func (s *recordingStore) AddNote(notes.Note)                    { s.notesAdded++ }
func (s *recordingStore) DeleteNote(uint64, string)              { s.notesDeleted++ }
func (s *recordingStore) AddPosition(notes.PerpPosition)         { s.positionsAdded++ }
func (s *recordingStore) DeletePosition(string, uint64)          {}
func (s *recordingStore) AddOrderTab(notes.OrderTab)              { s.tabsAdded++ }
func (s *recordingStore) DeleteOrderTab(string, uint64)           {}

func newTestBatch() (*batch.Batch, *recordingStore) {
	store := &recordingStore{}
	cfg := batch.Config{SpotTreeDepth: 10, PerpTreeDepth: 8, FundingRingCapacity: 64}
	return batch.New(cfg, tokens.Default(), store, nil), store
}

// testOwner is one keypair plus its derived address, used throughout these
// tests as a note/order owner signing with pkg/crypto over pkg/curve.
type testOwner struct {
	signer *crypto.Signer
}

func newTestOwner(t *testing.T) testOwner {
	t.Helper()
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate owner key: %v", err)
	}
	return testOwner{signer: signer}
}

func (o testOwner) address() curve.EcPoint {
	return o.signer.EcPoint()
}

func (o testOwner) sign(t *testing.T, digest field.Element) []byte {
	t.Helper()
	sig, err := o.signer.Sign(curve.DigestBytes(digest))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

// combinedOwner sums owners' private keys mod the curve order, matching
// curve.SumAddresses summing their public points: the aggregate signer
// verifies against the aggregate address multi-note orders (tab opens,
// add/remove-liquidity) check against.
func combinedOwner(t *testing.T, owners ...testOwner) testOwner {
	t.Helper()
	n := ethcrypto.S256().Params().N
	sum := new(big.Int)
	for _, o := range owners {
		d, ok := new(big.Int).SetString(o.signer.PrivateKeyHex(), 16)
		if !ok {
			t.Fatalf("combinedOwner: bad private key hex")
		}
		sum.Add(sum, d)
	}
	sum.Mod(sum, n)
	signer, err := crypto.FromPrivateKeyHex(fmt.Sprintf("%064x", sum))
	if err != nil {
		t.Fatalf("combinedOwner: %v", err)
	}
	return testOwner{signer: signer}
}

// mintNote deposits a single note for owner and returns the minted Note
// with its tree index populated, a small helper every executor test needs
// to set up spendable inputs.
func mintNote(t *testing.T, b *batch.Batch, owner testOwner, token uint32, amount uint64, blinding uint64) notes.Note {
	t.Helper()
	rec, err := b.Deposit(batch.DepositMsg{NotesToMint: []batch.NoteMint{
		{Address: owner.address(), Token: token, Amount: amount, Blinding: field.FromUint64(blinding)},
	}})
	if err != nil {
		t.Fatalf("mint note: %v", err)
	}
	idx := rec.Indexes["minted_note_0_idx"]
	n := notes.New(idx, owner.address(), token, amount, field.FromUint64(blinding))
	if want := rec.Hashes["minted_note_0_hash"]; !n.Hash.Equal(want) {
		t.Fatalf("mintNote: reconstructed hash does not match deposit record")
	}
	return n
}
