package dispatcher_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/curve"
	"github.com/invisible-exchange/rollup-core/pkg/dispatcher"
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// instantClock fires After immediately, so Finalize's single yield point
// never actually waits in tests.
type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}
func (instantClock) Now() time.Time { return time.Time{} }

type noopStore struct{}

func (noopStore) AddNote(notes.Note)            {}
func (noopStore) DeleteNote(uint64, string)     {}
func (noopStore) AddPosition(notes.PerpPosition) {}
func (noopStore) DeletePosition(string, uint64)  {}
func (noopStore) AddOrderTab(notes.OrderTab)     {}
func (noopStore) DeleteOrderTab(string, uint64)  {}

func testAddress(n int64) curve.EcPoint {
	return curve.EcPoint{X: big.NewInt(n), Y: big.NewInt(n + 1)}
}

func newTestActor() *dispatcher.Actor {
	cfg := batch.Config{SpotTreeDepth: 10, PerpTreeDepth: 8, FundingRingCapacity: 16}
	b := batch.New(cfg, tokens.Default(), noopStore{}, nil)
	return dispatcher.New(b, nil, 16, 8).WithClock(instantClock{})
}

func TestCommandsApplyInSubmissionOrder(t *testing.T) {
	actor := newTestActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	// Submitting three deposits sequentially must land their notes at
	// strictly increasing fresh indices in submission order (spec.md §5
	// "operations ... are applied in the order they arrive on its channel").
	var lastIdx int64 = -1
	for i := 0; i < 3; i++ {
		res := actor.Submit(ctx, dispatcher.CmdDeposit, batch.DepositMsg{
			NotesToMint: []batch.NoteMint{
				{Address: testAddress(int64(i)), Token: tokens.USDC, Amount: 100, Blinding: field.FromUint64(uint64(i))},
			},
		})
		if res.Err != nil {
			t.Fatalf("deposit %d: %v", i, res.Err)
		}
		rec := res.Witness.(*witness.Record)
		idx := int64(rec.Indexes["minted_note_0_idx"])
		if idx <= lastIdx {
			t.Fatalf("deposit %d landed at index %d, want > %d", i, idx, lastIdx)
		}
		lastIdx = idx
	}
}

func TestSubmitReturnsDepositWitness(t *testing.T) {
	actor := newTestActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	res := actor.Submit(ctx, dispatcher.CmdDeposit, batch.DepositMsg{
		NotesToMint: []batch.NoteMint{
			{Address: testAddress(1), Token: tokens.USDC, Amount: 500, Blinding: field.FromUint64(1)},
		},
	})
	if res.Err != nil {
		t.Fatalf("deposit: %v", res.Err)
	}
	if res.Finalize != nil {
		t.Error("expected Finalize to be nil for a non-finalize command")
	}
}

func TestFinalizeDrainsAndReturnsRoots(t *testing.T) {
	actor := newTestActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	res := actor.Submit(ctx, dispatcher.CmdDeposit, batch.DepositMsg{
		NotesToMint: []batch.NoteMint{
			{Address: testAddress(1), Token: tokens.USDC, Amount: 500, Blinding: field.FromUint64(1)},
		},
	})
	if res.Err != nil {
		t.Fatalf("deposit: %v", res.Err)
	}

	fin, err := actor.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.Seq != 1 {
		t.Errorf("seq = %d, want 1", fin.Seq)
	}
	if len(fin.Witnesses) != 1 {
		t.Errorf("len(witnesses) = %d, want 1", len(fin.Witnesses))
	}
	if fin.SpotRoot.IsZero() {
		t.Error("expected a nonzero spot root after a deposit")
	}
}

func TestUnknownCommandKindIsRejected(t *testing.T) {
	actor := newTestActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	res := actor.Submit(ctx, dispatcher.CommandKind(999), nil)
	if res.Err == nil {
		t.Fatal("expected an error for an unrecognized command kind")
	}
}

func TestSubmitRespectsCallerCancellation(t *testing.T) {
	actor := newTestActor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already canceled before Run ever starts processing

	res := actor.Submit(ctx, dispatcher.CmdDeposit, batch.DepositMsg{})
	if res.Err == nil {
		t.Fatal("expected Submit to observe the canceled context")
	}
}
