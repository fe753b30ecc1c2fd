// Package batch implements the per-transaction executors and the batch
// serializer that owns both state trees: deposit, withdrawal, spot swap,
// perpetual swap, liquidation, margin change, note split, order-tab
// lifecycle, and finalize (spec.md §4.2, §4.2.9).
package batch

import (
	"go.uber.org/zap"

	"github.com/invisible-exchange/rollup-core/pkg/field"
	"github.com/invisible-exchange/rollup-core/pkg/funding"
	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
	"github.com/invisible-exchange/rollup-core/pkg/tree"
	"github.com/invisible-exchange/rollup-core/pkg/witness"
)

// StoreQueue is the durable-write-intent boundary the batch fires idempotent
// add/delete calls into (spec.md §6 "Persisted state layout"); the core
// never waits on it and never treats it as a source of truth.
type StoreQueue interface {
	AddNote(n notes.Note)
	DeleteNote(index uint64, addressX string)
	AddPosition(p notes.PerpPosition)
	DeletePosition(addressX string, index uint64)
	AddOrderTab(t notes.OrderTab)
	DeleteOrderTab(addressX string, index uint64)
}

// PfrState is the partial-fill tracker entry kept per open order id: the
// refund note left over from the previous fill, plus bookkeeping to prove
// partial-fill conservation (spec.md §8 property 5).
type PfrState struct {
	PrevPfrNote   *notes.Note
	FilledAmount  uint64
	OriginalTotal uint64
}

// Batch owns the spot and perpetual state trees plus all in-batch mutable
// bookkeeping. Only the single-threaded dispatcher actor ever calls its
// methods (spec.md §5 "each state tree is owned by the serial executor").
type Batch struct {
	SpotTree *tree.Tree // depth 32: notes + order tabs
	PerpTree *tree.Tree // depth 16: positions

	Tokens  *tokens.Registry
	Funding *funding.Table
	Store   StoreQueue
	Log     *zap.SugaredLogger

	// PartialFills maps an open order id to its running PFR state.
	PartialFills map[uint64]*PfrState

	// UpdatedLeaves / UpdatedPerpLeaves record, per tree, the latest hash
	// written at every index touched so far this batch (spec.md §5 ordering guarantee
	// ii: "every updated_leaves entry reflects the last write at that
	// index for the batch" — callers read the *current* value, which this
	// map, updated on every write, always holds).
	UpdatedLeaves     map[uint64]field.Element
	UpdatedPerpLeaves map[uint64]field.Element

	Witnesses []*witness.Record

	// InsuranceFund accrues negative leftover_collateral debits from
	// liquidations (spec.md §9 Open Question 3); it is only ever debited,
	// never credited.
	InsuranceFund int64

	// tabs / positions are the actor's resolved-object registries. The
	// tree only ever stores a hash; an order referencing tab_idx/position
	// idx must resolve the live object from here, looked up by the index
	// the tree leaf was last written at (spec.md §9 "Shared ownership of
	// objects referenced by orders" — "keep tabs solely inside the serial
	// executor's tree and pass tab_idx by value through orders").
	tabs      map[uint64]notes.OrderTab
	positions map[uint64]notes.PerpPosition

	// seq counts finalized batches, used only for logging.
	seq uint64

	// currentRecord is the witness record the in-flight executor is
	// building; writeSpotLeaf/writePerpLeaf append every write to it so a
	// replayer can later reapply the same leaf writes verbatim.
	currentRecord *witness.Record
}

// Config bundles the construction-time parameters for a Batch.
type Config struct {
	SpotTreeDepth uint8
	PerpTreeDepth uint8
	FundingRingCapacity int
}

// New constructs an empty Batch with fresh trees.
func New(cfg Config, tokenRegistry *tokens.Registry, store StoreQueue, log *zap.SugaredLogger) *Batch {
	return &Batch{
		SpotTree:          tree.New(cfg.SpotTreeDepth),
		PerpTree:          tree.New(cfg.PerpTreeDepth),
		Tokens:            tokenRegistry,
		Funding:           funding.NewTable(cfg.FundingRingCapacity),
		Store:             store,
		Log:               log,
		PartialFills:      make(map[uint64]*PfrState),
		UpdatedLeaves:     make(map[uint64]field.Element),
		UpdatedPerpLeaves: make(map[uint64]field.Element),
		tabs:              make(map[uint64]notes.OrderTab),
		positions:         make(map[uint64]notes.PerpPosition),
	}
}

// lookupTab resolves a tab by index from the actor-owned registry.
func (b *Batch) lookupTab(idx uint64) (notes.OrderTab, bool) {
	t, ok := b.tabs[idx]
	return t, ok
}

// storeTab records a tab's latest state in the actor-owned registry.
func (b *Batch) storeTab(t notes.OrderTab) {
	b.tabs[t.TabIdx] = t
}

// removeTab drops a tab from the registry once it is fully closed/burned.
func (b *Batch) removeTab(idx uint64) {
	delete(b.tabs, idx)
}

// lookupPosition resolves a position by index from the actor-owned registry.
func (b *Batch) lookupPosition(idx uint64) (notes.PerpPosition, bool) {
	p, ok := b.positions[idx]
	return p, ok
}

// LookupPosition exposes the actor-owned position registry to callers
// outside the package (the introspection surface and test fixtures) that
// need a position's current state ahead of building a message that
// references it, e.g. a liquidator order's Position field.
func (b *Batch) LookupPosition(idx uint64) (notes.PerpPosition, bool) {
	return b.lookupPosition(idx)
}

// LookupTab exposes the actor-owned tab registry the same way LookupPosition
// does, for callers that need a tab's current balances/vlp_supply ahead of
// building a remove-liquidity or close message that references it.
func (b *Batch) LookupTab(idx uint64) (notes.OrderTab, bool) {
	return b.lookupTab(idx)
}

// storePosition records a position's latest state in the actor-owned
// registry.
func (b *Batch) storePosition(p notes.PerpPosition) {
	b.positions[p.Index] = p
}

// removePosition drops a position from the registry once fully closed.
func (b *Batch) removePosition(idx uint64) {
	delete(b.positions, idx)
}

// writeSpotLeaf updates the spot tree at idx and records the new hash in
// UpdatedLeaves, the single place every spot-tree mutation must pass
// through to keep the hash-leaf coherence invariant (spec.md §8 property 2).
func (b *Batch) writeSpotLeaf(idx uint64, h field.Element) {
	b.SpotTree.UpdateLeafNode(h, idx)
	b.UpdatedLeaves[idx] = h
	if b.currentRecord != nil {
		b.currentRecord.RecordLeaf("spot", idx, h)
	}
}

// writePerpLeaf updates the perpetual tree at idx and records the new hash.
func (b *Batch) writePerpLeaf(idx uint64, h field.Element) {
	b.PerpTree.UpdateLeafNode(h, idx)
	b.UpdatedPerpLeaves[idx] = h
	if b.currentRecord != nil {
		b.currentRecord.RecordLeaf("perp", idx, h)
	}
}

// beginRecord starts tracking leaf writes against rec for the duration of
// the calling executor; finishRecord must be called before it returns.
func (b *Batch) beginRecord(rec *witness.Record) {
	b.currentRecord = rec
}

// finishRecord stops tracking leaf writes against the current record.
func (b *Batch) finishRecord() {
	b.currentRecord = nil
}

// checkNoteExists verifies n's cached hash matches the tree's current leaf
// at n.Index (spec.md §4.2.2 "every notes_in[k].hash equals the leaf
// currently at notes_in[k].index").
func (b *Batch) checkNoteExists(txType string, n notes.Note) error {
	leaf := b.SpotTree.GetLeafByIndex(n.Index)
	if !leaf.Equal(n.Hash) {
		return wrapErrStateNotFound(txType, n.Index)
	}
	return nil
}

func wrapErrStateNotFound(txType string, idx uint64) *TxError {
	return newErr(StateNotFound, txType, "note/tab/position leaf does not match current tree state at index "+itoa(idx))
}

func itoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// distinctIndices rejects a note set containing duplicate indices, the
// uniqueness invariant spec.md §4.2.3 requires across both orders in a swap.
func distinctIndices(notesIn ...notes.Note) bool {
	seen := make(map[uint64]struct{}, len(notesIn))
	for _, n := range notesIn {
		if _, ok := seen[n.Index]; ok {
			return false
		}
		seen[n.Index] = struct{}{}
	}
	return true
}

func sumAmounts(notesIn []notes.Note) uint64 {
	var total uint64
	for _, n := range notesIn {
		total += n.Amount
	}
	return total
}

func recordLog(b *Batch, txType string) {
	if b.Log == nil {
		return
	}
	b.Log.Debugw("tx applied", "type", txType, "spot_root", b.SpotTree.Root().String(), "perp_root", b.PerpTree.Root().String())
}
