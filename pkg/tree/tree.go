// Package tree implements a sparse Merkle tree over field.Element leaves,
// parameterized by depth: a depth-32 instance backs the spot state (notes
// and order tabs), a depth-16 instance backs the perpetual state
// (positions). Only the batch serializer holds a *Tree; concurrent mutation
// is the caller's responsibility to forbid (spec.md §4.1, §5).
package tree

import (
	"fmt"
	"sync"

	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// nodeKey addresses one inner node by (level, index within level), level 0
// being the leaves.
type nodeKey struct {
	level uint8
	index uint64
}

// Preimage records one inner-node hash's two children, the prover's
// non-deterministic hint for batch_transition_updates (spec.md §4.1).
type Preimage struct {
	Parent field.Element
	Left   field.Element
	Right  field.Element
}

// Tree is a sparse Merkle tree of fixed Depth. The zero value is not usable;
// construct with New.
type Tree struct {
	mu sync.Mutex

	depth uint8
	// emptyHash[level] is the hash of a fully-empty subtree rooted at that
	// level (emptyHash[0] = field.Zero, the empty-leaf sentinel).
	emptyHash []field.Element

	nodes map[nodeKey]field.Element

	// zeroCursor is the first_zero_idx monotonic cursor (spec.md §4.1): it
	// only ever advances, so a leaf emptied mid-batch is never handed back
	// out as a fresh index within the same session.
	zeroCursor uint64
}

// New builds an empty tree of the given depth (capacity 2^depth leaves).
func New(depth uint8) *Tree {
	t := &Tree{
		depth: depth,
		nodes: make(map[nodeKey]field.Element),
	}
	t.emptyHash = make([]field.Element, depth+1)
	t.emptyHash[0] = field.Zero
	for lvl := uint8(1); lvl <= depth; lvl++ {
		t.emptyHash[lvl] = field.H(t.emptyHash[lvl-1], t.emptyHash[lvl-1])
	}
	return t
}

// Depth returns the tree's configured depth.
func (t *Tree) Depth() uint8 {
	return t.depth
}

// Capacity returns 2^depth, the logical leaf count.
func (t *Tree) Capacity() uint64 {
	return uint64(1) << t.depth
}

func (t *Tree) nodeAt(level uint8, index uint64) field.Element {
	if h, ok := t.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return t.emptyHash[level]
}

// GetLeafByIndex returns the stored leaf hash at i, or the empty-leaf
// sentinel (field.Zero) if nothing has been written there.
func (t *Tree) GetLeafByIndex(i uint64) field.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeAt(0, i)
}

// FirstZeroIdx yields the smallest index whose leaf is empty, advancing the
// internal cursor past it. It never returns the same index twice in the
// tree's lifetime even if that leaf is later emptied again (spec.md §4.1).
func (t *Tree) FirstZeroIdx() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cap := t.Capacity()
	for t.zeroCursor < cap {
		idx := t.zeroCursor
		if t.nodeAt(0, idx).IsZero() {
			t.zeroCursor++
			return idx, nil
		}
		t.zeroCursor++
	}
	return 0, fmt.Errorf("tree: exhausted capacity %d at depth %d", cap, t.depth)
}

// UpdateLeafNode writes h at index i and recomputes every inner node along
// the path to the root, using the precomputed empty-subtree hashes for
// absent siblings. O(depth) hashes.
func (t *Tree) UpdateLeafNode(h field.Element, i uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLeafLocked(h, i)
}

func (t *Tree) setLeafLocked(h field.Element, i uint64) {
	t.nodes[nodeKey{0, i}] = h
	cur := h
	idx := i
	for lvl := uint8(0); lvl < t.depth; lvl++ {
		var left, right field.Element
		if idx%2 == 0 {
			left = cur
			right = t.nodeAt(lvl, idx+1)
		} else {
			left = t.nodeAt(lvl, idx-1)
			right = cur
		}
		cur = field.H(left, right)
		idx /= 2
		t.nodes[nodeKey{lvl + 1, idx}] = cur
	}
}

// BatchTransitionUpdates applies every (index -> new hash) pair in updates,
// in ascending index order, and records every touched inner-node transition
// as (parent_hash -> (left_child, right_child)) preimages into the returned
// slice. This is the prover's non-deterministic hint (spec.md §4.1).
func (t *Tree) BatchTransitionUpdates(updates map[uint64]field.Element) []Preimage {
	t.mu.Lock()
	defer t.mu.Unlock()

	indices := make([]uint64, 0, len(updates))
	for idx := range updates {
		indices = append(indices, idx)
	}
	sortUint64s(indices)

	touchedLevels := make([]map[uint64]struct{}, t.depth+1)
	for lvl := range touchedLevels {
		touchedLevels[lvl] = make(map[uint64]struct{})
	}

	for _, idx := range indices {
		t.setLeafLocked(updates[idx], idx)
		pathIdx := idx
		for lvl := uint8(0); lvl <= t.depth; lvl++ {
			touchedLevels[lvl][pathIdx] = struct{}{}
			pathIdx /= 2
		}
	}

	var preimages []Preimage
	for lvl := uint8(0); lvl < t.depth; lvl++ {
		for idx := range touchedLevels[lvl+1] {
			leftIdx := idx * 2
			left := t.nodeAt(lvl, leftIdx)
			right := t.nodeAt(lvl, leftIdx+1)
			parent := t.nodeAt(lvl+1, idx)
			preimages = append(preimages, Preimage{Parent: parent, Left: left, Right: right})
		}
	}
	return preimages
}

// AdvanceZeroCursor moves the FirstZeroIdx cursor forward to at least n,
// never backward. A replayer uses this after reapplying recorded leaf
// writes so indices already handed out before a restart are never reissued
// (spec.md §9 "Restore / replay").
func (t *Tree) AdvanceZeroCursor(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.zeroCursor {
		t.zeroCursor = n
	}
}

// Root returns the current top hash.
func (t *Tree) Root() field.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeAt(t.depth, 0)
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
