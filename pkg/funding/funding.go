// Package funding holds the bounded ring of per-index funding rates and
// prices perpetual positions are charged against, and the routine that
// folds a position's outstanding funding into its margin before any other
// mutation touches it (spec.md §4.2.4 step 1, §9 "Funding-rate table").
package funding

import (
	"fmt"

	"github.com/invisible-exchange/rollup-core/pkg/notes"
	"github.com/invisible-exchange/rollup-core/pkg/tokens"
)

// Snapshot is one funding index's recorded rate and mark price, keyed by
// synthetic token.
type Snapshot struct {
	Rate  int64 // signed, FundingDenominator fixed-point
	Price uint64
}

// Table is a bounded ring of funding indices, one ring per synthetic token.
// Positions only ever carry last_funding_idx; the table itself is owned
// exclusively by the serial batch executor.
type Table struct {
	capacity int
	byToken  map[uint32]*ring
}

type ring struct {
	base   uint64 // funding index of entries[0]
	entries []Snapshot
}

// NewTable builds a funding table retaining up to capacity indices per
// token before eviction.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = 1
	}
	return &Table{capacity: capacity, byToken: make(map[uint32]*ring)}
}

// Record appends the snapshot for (token, index), which must be exactly one
// past the ring's current head (funding indices are applied in order).
func (t *Table) Record(token uint32, index uint64, rate int64, price uint64) error {
	r, ok := t.byToken[token]
	if !ok {
		r = &ring{base: index}
		t.byToken[token] = r
	}
	want := r.base + uint64(len(r.entries))
	if len(r.entries) == 0 {
		r.base = index
	} else if index != want {
		return fmt.Errorf("funding: out-of-order record for token %d: got index %d, want %d", token, index, want)
	}
	r.entries = append(r.entries, Snapshot{Rate: rate, Price: price})
	return nil
}

// EvictBefore drops every retained index strictly below minRetained for
// token, provided no live position's last_funding_idx still references
// those slots (the caller is responsible for that check, per spec.md §9:
// "evict from the head only when no live position's last_funding_idx
// references that slot").
func (t *Table) EvictBefore(token uint32, minRetained uint64) {
	r, ok := t.byToken[token]
	if !ok {
		return
	}
	for len(r.entries) > 0 && r.base < minRetained {
		r.entries = r.entries[1:]
		r.base++
	}
	if len(r.entries) > t.capacity {
		drop := len(r.entries) - t.capacity
		r.entries = r.entries[drop:]
		r.base += uint64(drop)
	}
}

// HeadIndex returns the current (latest+1) funding index for token, the
// current_funding_idx executors apply positions up to.
func (t *Table) HeadIndex(token uint32) uint64 {
	r, ok := t.byToken[token]
	if !ok {
		return 0
	}
	return r.base + uint64(len(r.entries))
}

// Range returns every snapshot in [from, to) for token, erroring with
// FundingOutOfRange semantics if from predates the retained window
// (spec.md §7 "FundingOutOfRange").
func (t *Table) Range(token uint32, from, to uint64) ([]Snapshot, error) {
	if from > to {
		return nil, fmt.Errorf("funding: invalid range [%d,%d)", from, to)
	}
	if from == to {
		return nil, nil
	}
	r, ok := t.byToken[token]
	if !ok {
		return nil, fmt.Errorf("funding: no table for token %d", token)
	}
	if from < r.base {
		return nil, fmt.Errorf("funding: index %d below retained minimum %d for token %d", from, r.base, token)
	}
	head := r.base + uint64(len(r.entries))
	if to > head {
		return nil, fmt.Errorf("funding: index %d beyond recorded head %d for token %d", to, head, token)
	}
	start := from - r.base
	end := to - r.base
	out := make([]Snapshot, end-start)
	copy(out, r.entries[start:end])
	return out, nil
}

// ApplyFunding folds every outstanding funding index in
// [pos.LastFundingIdx, currentIdx) into pos.Margin and advances
// pos.LastFundingIdx to currentIdx, following
// margin <- margin - side*size*sum(rate_i*price_i)/FundingDenominator
// (spec.md §4.2.4 step 1). Returns the signed margin delta applied.
func (t *Table) ApplyFunding(pos *notes.PerpPosition, currentIdx uint64) (int64, error) {
	if currentIdx < pos.LastFundingIdx {
		return 0, fmt.Errorf("funding: current index %d precedes position's last applied index %d", currentIdx, pos.LastFundingIdx)
	}
	if currentIdx == pos.LastFundingIdx || pos.PositionSize == 0 {
		pos.LastFundingIdx = currentIdx
		return 0, nil
	}
	snaps, err := t.Range(pos.PositionHeader.SyntheticToken, pos.LastFundingIdx, currentIdx)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, s := range snaps {
		sum += s.Rate * int64(s.Price)
	}
	sign := int64(1)
	if pos.OrderSide.String() == "short" {
		sign = -1
	}
	delta := -sign * int64(pos.PositionSize) * sum / tokens.FundingDenominator

	newMargin := int64(pos.Margin) + delta
	if newMargin < 0 {
		newMargin = 0
	}
	pos.Margin = uint64(newMargin)
	pos.LastFundingIdx = currentIdx
	pos.RederivePrices()
	pos.Rehash()
	return delta, nil
}
