package restore

import (
	"math/big"
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

type noopStore struct{}

func (noopStore) AddNote(notes.Note)                   {}
func (noopStore) DeleteNote(uint64, string)             {}
func (noopStore) AddPosition(notes.PerpPosition)        {}
func (noopStore) DeletePosition(string, uint64)         {}
func (noopStore) AddOrderTab(notes.OrderTab)             {}
func (noopStore) DeleteOrderTab(string, uint64)          {}

func testAddress(n int64) curve.EcPoint {
	return curve.EcPoint{X: big.NewInt(n), Y: big.NewInt(n + 1)}
}

func TestReplayMatchesForwardExecution(t *testing.T) {
	cfg := batch.Config{SpotTreeDepth: 6, PerpTreeDepth: 4, FundingRingCapacity: 16}
	b := batch.New(cfg, tokens.Default(), noopStore{}, nil)

	dep1 := batch.DepositMsg{NotesToMint: []batch.NoteMint{
		{Address: testAddress(1), Token: tokens.USDC, Amount: 1000, Blinding: field.FromUint64(7)},
	}}
	rec1, err := b.Deposit(dep1)
	if err != nil {
		t.Fatalf("deposit 1: %v", err)
	}

	dep2 := batch.DepositMsg{NotesToMint: []batch.NoteMint{
		{Address: testAddress(2), Token: tokens.BTC, Amount: 5, Blinding: field.FromUint64(11)},
		{Address: testAddress(3), Token: tokens.USDC, Amount: 250, Blinding: field.FromUint64(13)},
	}}
	rec2, err := b.Deposit(dep2)
	if err != nil {
		t.Fatalf("deposit 2: %v", err)
	}

	result, err := b.FinalizeBatch()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rp := New(cfg.SpotTreeDepth, cfg.PerpTreeDepth)
	if err := rp.ApplyAll([]*witness.Record{rec1, rec2}); err != nil {
		t.Fatalf("apply all: %v", err)
	}

	if err := rp.Verify(result.SpotRoot, result.PerpRoot); err != nil {
		t.Fatalf("replay roots diverged from forward execution: %v", err)
	}
}

func TestReplayAdvancesZeroCursorPastReplayedIndices(t *testing.T) {
	cfg := batch.Config{SpotTreeDepth: 3, PerpTreeDepth: 3, FundingRingCapacity: 4}
	b := batch.New(cfg, tokens.Default(), noopStore{}, nil)

	dep := batch.DepositMsg{NotesToMint: []batch.NoteMint{
		{Address: testAddress(1), Token: tokens.USDC, Amount: 1, Blinding: field.FromUint64(1)},
		{Address: testAddress(2), Token: tokens.USDC, Amount: 1, Blinding: field.FromUint64(2)},
	}}
	rec, err := b.Deposit(dep)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rp := New(cfg.SpotTreeDepth, cfg.PerpTreeDepth)
	if err := rp.Apply(rec); err != nil {
		t.Fatalf("apply: %v", err)
	}

	idx, err := rp.SpotTree.FirstZeroIdx()
	if err != nil {
		t.Fatalf("first zero idx: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected replay to advance the cursor past the two minted notes, got idx=%d", idx)
	}
}
