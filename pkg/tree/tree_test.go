package tree

import (
	"testing"

	"github.com/invisible-exchange/rollup-core/pkg/field"
)

func TestEmptyTreeRootStable(t *testing.T) {
	a := New(8)
	b := New(8)
	if !a.Root().Equal(b.Root()) {
		t.Fatalf("two empty trees of the same depth must share a root")
	}
}

func TestUpdateLeafNodeChangesRoot(t *testing.T) {
	tr := New(4)
	before := tr.Root()
	tr.UpdateLeafNode(field.FromUint64(42), 3)
	after := tr.Root()
	if before.Equal(after) {
		t.Fatalf("root must change after a leaf write")
	}
	if got := tr.GetLeafByIndex(3); !got.Equal(field.FromUint64(42)) {
		t.Fatalf("leaf 3 = %s, want 42", got)
	}
	if got := tr.GetLeafByIndex(0); !got.IsZero() {
		t.Fatalf("untouched leaf 0 must read back zero")
	}
}

func TestFirstZeroIdxMonotonic(t *testing.T) {
	tr := New(4)
	i0, err := tr.FirstZeroIdx()
	if err != nil || i0 != 0 {
		t.Fatalf("first call = (%d,%v), want (0,nil)", i0, err)
	}
	tr.UpdateLeafNode(field.FromUint64(1), i0)

	i1, err := tr.FirstZeroIdx()
	if err != nil || i1 != 1 {
		t.Fatalf("second call = (%d,%v), want (1,nil)", i1, err)
	}

	// Emptying leaf 0 again must not hand index 0 back out.
	tr.UpdateLeafNode(field.Zero, i0)
	i2, err := tr.FirstZeroIdx()
	if err != nil || i2 <= i1 {
		t.Fatalf("cursor must not reuse a freed index within the session, got %d after %d", i2, i1)
	}
}

func TestBatchTransitionUpdatesMatchesSequentialWrites(t *testing.T) {
	sequential := New(5)
	sequential.UpdateLeafNode(field.FromUint64(7), 2)
	sequential.UpdateLeafNode(field.FromUint64(9), 5)
	wantRoot := sequential.Root()

	batched := New(5)
	preimages := batched.BatchTransitionUpdates(map[uint64]field.Element{
		2: field.FromUint64(7),
		5: field.FromUint64(9),
	})
	if !batched.Root().Equal(wantRoot) {
		t.Fatalf("batched root %s != sequential root %s", batched.Root(), wantRoot)
	}
	if len(preimages) == 0 {
		t.Fatalf("expected at least one recorded preimage")
	}
	for _, p := range preimages {
		if !field.H(p.Left, p.Right).Equal(p.Parent) {
			t.Fatalf("preimage does not hash to its recorded parent")
		}
	}
}

func TestFirstZeroIdxExhaustion(t *testing.T) {
	tr := New(1) // capacity 2
	if _, err := tr.FirstZeroIdx(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.FirstZeroIdx(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tr.FirstZeroIdx(); err == nil {
		t.Fatalf("expected capacity-exhaustion error")
	}
}
