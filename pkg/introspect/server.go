// Package introspect exposes a small read-only REST+WS admin surface over
// committed roots and the latest finalized witness batch: the seam the
// real RPC/prover transport sits behind (spec.md §9 "only the interface
// matters"), not the matching/order-submission surface itself. Modeled on
// the teacher's pkg/api.Server (mux subrouter, cors wrapping, a
// broadcasting Hub) with everything order/account/market specific dropped.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/invisible-exchange/rollup-core/pkg/batch"
	"github.com/invisible-exchange/rollup-core/pkg/field"
)

// Server serves the admin surface and owns the websocket hub.
type Server struct {
	log    *zap.SugaredLogger
	router *mux.Router
	hub    *Hub

	mu     sync.RWMutex
	latest BatchSummary
}

// NewServer constructs a Server with routes wired and its hub idle; call
// Start to run it, or Router()/Hub() to embed it in a bigger mux.
func NewServer(log *zap.SugaredLogger) *Server {
	s := &Server{
		log:    log,
		router: mux.NewRouter(),
		hub:    NewHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/roots", s.handleRoots).Methods("GET")
	api.HandleFunc("/batch/latest", s.handleLatestBatch).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and blocks serving addr. cors.Default, like the
// teacher's, allows any origin — this surface is read-only and carries no
// credentials.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	handler := cors.Default().Handler(s.router)
	if s.log != nil {
		s.log.Infow("introspect server starting", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

// Router exposes the underlying mux.Router so a caller can mount this
// surface under a larger server instead of calling Start directly.
func (s *Server) Router() *mux.Router { return s.router }

// Publish records fin as the latest finalized batch and pushes a
// batch_finalized event to every connected websocket client. Callers wire
// this in right after dispatcher.Actor.Finalize succeeds.
func (s *Server) Publish(fin *batch.FinalizeResult) {
	summary := BatchSummary{
		Seq:      fin.Seq,
		SpotRoot: fin.SpotRoot.String(),
		PerpRoot: fin.PerpRoot.String(),
		TxCount:  len(fin.Witnesses),
	}
	for _, w := range fin.Witnesses {
		summary.Witnesses = append(summary.Witnesses, WitnessSummary{
			Type:    string(w.Type),
			Hashes:  stringifyHashes(w.Hashes),
			Indexes: w.Indexes,
		})
	}

	s.mu.Lock()
	s.latest = summary
	s.mu.Unlock()

	s.hub.Publish("batch_finalized", summary)
}

func stringifyHashes(in map[string]field.Element) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v.String()
	}
	return out
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := RootsResponse{Seq: s.latest.Seq, SpotRoot: s.latest.SpotRoot, PerpRoot: s.latest.PerpRoot}
	s.mu.RUnlock()
	respondJSON(w, resp)
}

func (s *Server) handleLatestBatch(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := s.latest
	s.mu.RUnlock()
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warnw("introspect: ws upgrade", "err", err)
		}
		return
	}
	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
