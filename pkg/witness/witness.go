// Package witness defines the JSON shape emitted once per applied
// transaction, the trace a downstream prover consumes (spec.md §6
// "Witness-record format"). The batch package is the only producer; this
// package only knows how to shape and serialize a Record.
package witness

import (
	"encoding/json"
	"fmt"

	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// TransactionType enumerates the witness-record kinds spec.md §6 lists.
type TransactionType string

const (
	Deposit           TransactionType = "deposit"
	Withdrawal        TransactionType = "withdrawal"
	Swap              TransactionType = "swap"
	PerpetualSwap     TransactionType = "perpetual_swap"
	LiquidationSwap   TransactionType = "liquidation_swap"
	MarginChange      TransactionType = "margin_change"
	NoteSplit         TransactionType = "note_split"
	OpenOrderTab      TransactionType = "open_order_tab"
	CloseOrderTab     TransactionType = "close_order_tab"
	OnchainRegisterMM TransactionType = "onchain_register_mm"
	AddLiquidity      TransactionType = "add_liquidity"
	RemoveLiquidity   TransactionType = "remove_liquidity"
)

// FundingIndexes carries the prev/new funding-index pair perpetual records
// must report (spec.md §6).
type FundingIndexes struct {
	PrevFundingIdx uint64 `json:"prev_funding_idx"`
	NewFundingIdx  uint64 `json:"new_funding_idx"`
}

// LeafUpdate is one tree-leaf write this record's transaction performed, in
// the order it was applied. A replayer reapplies exactly these writes
// against fresh trees to reach the same roots without re-running any
// business logic or signature check (spec.md §9 "Restore / replay").
type LeafUpdate struct {
	Tree  string // "spot" or "perp"
	Index uint64
	Hash  field.Element
}

// Record is one applied transaction's witness trace: its type, its input
// message, every produced hash (decimal-string serialized via
// field.Element's own MarshalJSON), and the set of tree indexes it touched.
type Record struct {
	Type           TransactionType
	Message        any
	Hashes         map[string]field.Element
	Indexes        map[string]uint64
	FundingIndexes *FundingIndexes

	// Leaves is not part of the JSON wire shape; it is kept in-process so
	// restore.Replayer can rebuild tree state without re-deriving it.
	Leaves []LeafUpdate
}

// New builds a Record. message should be the exact input request the
// executor validated; hashes/indexes are filled in by the executor as it
// mutates state.
func New(t TransactionType, message any) *Record {
	return &Record{
		Type:    t,
		Message: message,
		Hashes:  make(map[string]field.Element),
		Indexes: make(map[string]uint64),
	}
}

// SetHash records a produced hash under name (e.g. "swap_note_a",
// "tab_hash", "new_position_hash").
func (r *Record) SetHash(name string, h field.Element) {
	r.Hashes[name] = h
}

// SetIndex records a touched tree index under name (e.g. "notes_in_0",
// "tab_idx", "position_idx").
func (r *Record) SetIndex(name string, idx uint64) {
	r.Indexes[name] = idx
}

// RecordLeaf appends a tree-leaf write to replay later.
func (r *Record) RecordLeaf(tree string, index uint64, hash field.Element) {
	r.Leaves = append(r.Leaves, LeafUpdate{Tree: tree, Index: index, Hash: hash})
}

// MarshalJSON flattens message, hashes, and indexes into one JSON object
// alongside transaction_type, exactly the "plus all input messages... plus
// an indexes sub-object" shape spec.md §6 describes.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4)
	out["transaction_type"] = string(r.Type)

	if r.Message != nil {
		raw, err := json.Marshal(r.Message)
		if err != nil {
			return nil, fmt.Errorf("witness: marshal message: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("witness: message is not a JSON object: %w", err)
		}
		for k, v := range fields {
			out[k] = v
		}
	}

	if len(r.Hashes) > 0 {
		hashes := make(map[string]string, len(r.Hashes))
		for k, v := range r.Hashes {
			hashes[k] = v.String()
		}
		out["hashes"] = hashes
	}

	indexes := make(map[string]any, len(r.Indexes)+2)
	for k, v := range r.Indexes {
		indexes[k] = v
	}
	if r.FundingIndexes != nil {
		indexes["prev_funding_idx"] = r.FundingIndexes.PrevFundingIdx
		indexes["new_funding_idx"] = r.FundingIndexes.NewFundingIdx
	}
	out["indexes"] = indexes

	return json.Marshal(out)
}
