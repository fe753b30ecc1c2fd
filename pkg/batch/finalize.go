package batch

import (
	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// FinalizeResult is what a finalized batch reports to its caller
// (spec.md §4.2.9).
type FinalizeResult struct {
	Seq            uint64
	SpotRoot       field.Element
	PerpRoot       field.Element
	Witnesses      []*witness.Record
	SpotPreimages  []SpotPreimage
	PerpPreimages  []PerpPreimage
}

// SpotPreimage is one spot-tree inner-node transition recorded during
// finalize.
type SpotPreimage struct {
	Parent, Left, Right field.Element
}

// PerpPreimage is the perpetual-tree analogue of SpotPreimage.
type PerpPreimage struct {
	Parent, Left, Right field.Element
}

// FinalizeBatch freezes the current witness vector, triggers
// batch_transition_updates at the roots of both trees to produce the
// prover's pre-image, snapshots both trees, and resets in-batch mutable
// state (spec.md §4.2.9). Finalize-batch failures are fatal to the batch
// (spec.md §4.3): the caller must reject and restart from the previously
// committed root, so this never partially resets state on error.
func (b *Batch) FinalizeBatch() (*FinalizeResult, error) {
	spotPre := b.SpotTree.BatchTransitionUpdates(b.UpdatedLeaves)
	perpPre := b.PerpTree.BatchTransitionUpdates(b.UpdatedPerpLeaves)

	b.seq++
	result := &FinalizeResult{
		Seq:       b.seq,
		SpotRoot:  b.SpotTree.Root(),
		PerpRoot:  b.PerpTree.Root(),
		Witnesses: b.Witnesses,
	}
	for _, p := range spotPre {
		result.SpotPreimages = append(result.SpotPreimages, SpotPreimage(p))
	}
	for _, p := range perpPre {
		result.PerpPreimages = append(result.PerpPreimages, PerpPreimage(p))
	}

	if b.Log != nil {
		b.Log.Infow("batch finalized",
			"seq", result.Seq,
			"txs", len(result.Witnesses),
			"spot_root", result.SpotRoot.String(),
			"perp_root", result.PerpRoot.String(),
		)
	}

	b.Witnesses = nil
	b.UpdatedLeaves = make(map[uint64]field.Element)
	b.UpdatedPerpLeaves = make(map[uint64]field.Element)
	b.PartialFills = make(map[uint64]*PfrState)

	return result, nil
}
