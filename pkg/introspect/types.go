package introspect

// Wire shapes for the REST/WS admin surface (spec.md §9 "the introspection
// surface, not the out-of-scope RPC transport itself").

// RootsResponse is the current committed state of both trees.
type RootsResponse struct {
	Seq      uint64 `json:"seq"`
	SpotRoot string `json:"spotRoot"`
	PerpRoot string `json:"perpRoot"`
}

// WitnessSummary is one applied transaction's witness record, trimmed to
// what an admin client needs to see without pulling in the full preimage
// vectors (those stay in pkg/batch.FinalizeResult for the prover path).
type WitnessSummary struct {
	Type    string         `json:"transactionType"`
	Hashes  map[string]string `json:"hashes"`
	Indexes map[string]uint64 `json:"indexes"`
}

// BatchSummary is the latest finalized batch, as reported over REST and
// pushed to websocket subscribers.
type BatchSummary struct {
	Seq       uint64           `json:"seq"`
	SpotRoot  string           `json:"spotRoot"`
	PerpRoot  string           `json:"perpRoot"`
	TxCount   int              `json:"txCount"`
	Witnesses []WitnessSummary `json:"witnesses,omitempty"`
}

// WSMessage is the envelope every websocket push is wrapped in.
type WSMessage struct {
	Type string      `json:"type"` // "batch_finalized"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by a client to (un)subscribe to channels.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is returned for all REST errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
