package batch

import "fmt"

// Kind is the error taxonomy spec.md §7 defines: categories, not Go types,
// so callers can branch on Kind without a growing set of sentinel errors.
type Kind int

const (
	// InvalidRequest — malformed message, missing required field, bad
	// signature, unknown token.
	InvalidRequest Kind = iota
	// StateNotFound — referenced note/position/tab index's current leaf
	// hash does not match the supplied object.
	StateNotFound
	// Inconsistent — arithmetic invariants broken: sum-of-notes mismatch,
	// overspending, opposite-side required, duplicate spend, leverage
	// exceeded, liquidation preconditions unmet.
	Inconsistent
	// FundingOutOfRange — position's last_funding_idx below the minimum
	// retained funding index.
	FundingOutOfRange
	// Fatal — tree-internal invariant violation (should be unreachable).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case StateNotFound:
		return "state_not_found"
	case Inconsistent:
		return "inconsistent"
	case FundingOutOfRange:
		return "funding_out_of_range"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TxError is the error every executor returns on rejection. It carries
// enough for the RPC boundary to map to a client-visible string while
// leaving state untouched (spec.md §4.2 "They never retry... leaves state
// untouched").
type TxError struct {
	Kind            Kind
	TransactionType string
	Msg             string
	Err             error
}

func (e *TxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.TransactionType, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.TransactionType, e.Kind, e.Msg)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

func newErr(kind Kind, txType, msg string) *TxError {
	return &TxError{Kind: kind, TransactionType: txType, Msg: msg}
}

func wrapErr(kind Kind, txType, msg string, err error) *TxError {
	return &TxError{Kind: kind, TransactionType: txType, Msg: msg, Err: err}
}
