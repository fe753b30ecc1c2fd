// Package restore rebuilds the spot and perpetual state trees from a
// recorded witness sequence, without re-running any executor's validation
// or signature checks, and without touching the durable object store
// (notes/tabs/positions are read back from storequeue directly on
// restart) — only tree roots and the first_zero_idx cursors are rebuilt
// here (spec.md §9 "Restore / replay").
package restore

import (
	"fmt"

	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/tree"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// Replayer reapplies a sequence of witness records' leaf writes against a
// fresh pair of trees.
type Replayer struct {
	SpotTree *tree.Tree
	PerpTree *tree.Tree
}

// New builds a Replayer with fresh trees of the given depths.
func New(spotDepth, perpDepth uint8) *Replayer {
	return &Replayer{
		SpotTree: tree.New(spotDepth),
		PerpTree: tree.New(perpDepth),
	}
}

// Apply replays every leaf write recorded on rec, in the order the original
// executor performed them, then advances each tree's zero cursor past the
// highest index it touched so a restarted dispatcher never reissues an
// index already handed out before the restart.
func (rp *Replayer) Apply(rec *witness.Record) error {
	var maxSpot, maxPerp uint64
	sawSpot, sawPerp := false, false

	for _, lu := range rec.Leaves {
		switch lu.Tree {
		case "spot":
			rp.SpotTree.UpdateLeafNode(lu.Hash, lu.Index)
			if !sawSpot || lu.Index > maxSpot {
				maxSpot = lu.Index
			}
			sawSpot = true
		case "perp":
			rp.PerpTree.UpdateLeafNode(lu.Hash, lu.Index)
			if !sawPerp || lu.Index > maxPerp {
				maxPerp = lu.Index
			}
			sawPerp = true
		default:
			return fmt.Errorf("restore: unknown tree tag %q in %s record", lu.Tree, rec.Type)
		}
	}
	if sawSpot {
		rp.SpotTree.AdvanceZeroCursor(maxSpot + 1)
	}
	if sawPerp {
		rp.PerpTree.AdvanceZeroCursor(maxPerp + 1)
	}
	return nil
}

// ApplyAll replays every record in order. It is the whole restore path: feed
// it the witness log persisted for the last un-finalized (or last N
// finalized, for a from-genesis rebuild) batches and the resulting tree
// roots must equal what forward execution produced (spec.md §8 property 7
// "restore determinism").
func (rp *Replayer) ApplyAll(records []*witness.Record) error {
	for i, rec := range records {
		if err := rp.Apply(rec); err != nil {
			return fmt.Errorf("restore: record %d (%s): %w", i, rec.Type, err)
		}
	}
	return nil
}

// Verify reports whether the replayer's current roots match the roots the
// forward-executing batch recorded at finalize time. A mismatch means the
// witness log is incomplete, corrupted, or was replayed out of order.
func (rp *Replayer) Verify(expectedSpotRoot, expectedPerpRoot field.Element) error {
	if !rp.SpotTree.Root().Equal(expectedSpotRoot) {
		return fmt.Errorf("restore: spot root mismatch: got %s want %s", rp.SpotTree.Root().String(), expectedSpotRoot.String())
	}
	if !rp.PerpTree.Root().Equal(expectedPerpRoot) {
		return fmt.Errorf("restore: perp root mismatch: got %s want %s", rp.PerpTree.Root().String(), expectedPerpRoot.String())
	}
	return nil
}
