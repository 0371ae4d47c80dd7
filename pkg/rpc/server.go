package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/meta-node-blockchain/coin-consensus/internal/telemetry"
	"github.com/meta-node-blockchain/coin-consensus/pkg/consensus"
	"github.com/meta-node-blockchain/coin-consensus/pkg/logger"
)

// UpdateRequest is the wire shape of a pushed decision.
type UpdateRequest struct {
	Round uint64 `json:"round"`
	Value int    `json:"value"`
}

// ProbeResponse answers the liveness probe.
type ProbeResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes one agent's RPC surface over HTTP.
type Server struct {
	agent   *consensus.Agent
	addr    string
	httpSrv *http.Server
	ln      net.Listener
}

func NewServer(agent *consensus.Agent, addr string) *Server {
	s := &Server{agent: agent, addr: addr}

	mux := http.NewServeMux()
	mux.Handle("/probe", telemetry.Instrument("probe", s.method(http.MethodGet, s.handleProbe)))
	mux.Handle("/run", telemetry.Instrument("run", s.method(http.MethodPost, s.handleRun)))
	mux.Handle("/state", telemetry.Instrument("state", s.method(http.MethodGet, s.handleState)))
	mux.Handle("/update", telemetry.Instrument("update", s.method(http.MethodPost, s.handleUpdate)))
	mux.Handle("/stop", telemetry.Instrument("stop", s.method(http.MethodPost, s.handleStop)))
	mux.Handle("/metrics", telemetry.MetricsHandler())

	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Start binds the listener and serves in the background. Callers mark the
// agent ready in the registry only after Start returns.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("agent %d failed to listen on %s: %w", s.agent.ID(), s.addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("agent %d server error: %v", s.agent.ID(), err)
		}
	}()
	logger.Info("agent %d listening on %s", s.agent.ID(), ln.Addr())
	return nil
}

// Addr returns the bound address, useful when Start was given port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) method(want string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != want {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		h(w, r)
	})
}

func (s *Server) handleProbe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: s.agent.Probe()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

// handleRun blocks until the run loop reaches a terminal state. Ceiling
// exhaustion is an ordinary completion; the caller inspects the returned
// state to tell the outcomes apart.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Run(r.Context()); err != nil {
		writeJSON(w, rejectStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed update payload"})
		return
	}
	if req.Value != 0 && req.Value != 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("update value %d is not binary", req.Value)})
		return
	}
	if err := s.agent.HandleUpdate(req.Round, consensus.Opinion(req.Value)); err != nil {
		writeJSON(w, rejectStatus(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleStop acknowledges, then shuts the listener down so peers observe
// connection failures instead of answers from a dead agent.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.agent.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			logger.Warn("agent %d listener shutdown: %v", s.agent.ID(), err)
		}
	}()
}

func rejectStatus(err error) int {
	switch {
	case errors.Is(err, consensus.ErrStopped),
		errors.Is(err, consensus.ErrFaulty),
		errors.Is(err, consensus.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
