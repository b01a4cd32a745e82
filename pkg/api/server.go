package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slotpool/slotpool/pkg/engine"
	"github.com/slotpool/slotpool/pkg/log"
	"github.com/slotpool/slotpool/pkg/metrics"
	"github.com/slotpool/slotpool/pkg/types"
)

// Lifecycle is the engine surface the webhook server needs
type Lifecycle interface {
	Borrow(slot, sessionID string) (*engine.Result, error)
	Return(slot, sessionID string) (*engine.Result, error)
}

// Server is the HTTP webhook surface: POST /borrow and POST /return
// from the pool allocator, GET /health for liveness, /metrics for
// Prometheus.
type Server struct {
	engine Lifecycle
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates the webhook server around a lifecycle engine
func NewServer(eng Lifecycle) *Server {
	s := &Server{
		engine: eng,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/borrow", s.borrowHandler)
	s.mux.HandleFunc("/return", s.returnHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.notFoundHandler)

	return s
}

// Start starts the webhook server and blocks until it exits
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 5 * time.Second,
		// No write timeout: borrow/return block until the storage
		// primitives return, and those have no deadline of their own
		IdleTimeout: 60 * time.Second,
	}

	log.WithComponent("api").Info().Str("addr", addr).Msg("webhook server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// webhookRequest is the borrow/return body shape sent by the pool
// allocator
type webhookRequest struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
	Params struct {
		SessionID string `json:"sessionId"`
	} `json:"params"`
}

// successResponse is the 200 body for borrow/return
type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// errorResponse is the body for every non-200
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, path string, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	metrics.RequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (s *Server) borrowHandler(w http.ResponseWriter, r *http.Request) {
	s.handleOperation(w, r, "/borrow", s.engine.Borrow)
}

func (s *Server) returnHandler(w http.ResponseWriter, r *http.Request) {
	s.handleOperation(w, r, "/return", s.engine.Return)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request, path string, op func(string, string) (*engine.Result, error)) {
	if r.Method != http.MethodPost {
		writeJSON(w, path, http.StatusNotFound, errorResponse{Error: "Not found"})
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, path, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	logger := log.WithComponent("api")
	logger.Info().
		Str("path", path).
		Str("slot", req.Item.ID).
		Str("session_id", req.Params.SessionID).
		Msg("received webhook")

	result, err := op(req.Item.ID, req.Params.SessionID)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("operation failed")
		writeJSON(w, path, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, path, http.StatusOK, successResponse{
		Status:  "success",
		Message: result.Message,
	})
}

// statusFor maps the error taxonomy to HTTP status codes: client
// errors are 400, everything else is 500
func statusFor(err error) int {
	if types.IsInvalidRequest(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.notFoundHandler(w, r)
		return
	}
	writeJSON(w, "/health", http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.URL.Path, http.StatusNotFound,
		errorResponse{Error: fmt.Sprintf("Unknown endpoint: %s", r.URL.Path)})
}
