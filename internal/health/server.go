package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultErrorLimit is the number of records GET /errors returns without ?limit.
const DefaultErrorLimit = 20

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	conn    Connectivity
	errors  ErrorHistory
	started time.Time
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new health server.
func NewServer(conn Connectivity, errors ErrorHistory, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		conn:    conn,
		errors:  errors,
		started: time.Now(),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: slog.Default().With("component", "health"),
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /errors", s.handleErrors)
	mux.HandleFunc("DELETE /errors", s.handleClearErrors)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after a graceful Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("Admin server listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) report() Report {
	online := s.conn.IsOnline()
	status := StatusHealthy
	if !online {
		status = StatusDegraded
	}
	return Report{
		Status:        status,
		Online:        online,
		QueueSize:     s.errors.Len(),
		QueueCapacity: s.errors.Capacity(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
}

// handleHealth always answers 200 while the process serves requests; peers
// use it as their reachability probe. Losing upstream connectivity only
// degrades the reported status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.report().Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.report())
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := DefaultErrorLimit
	if raw := r.URL.Query().Get("limit"); raw == "all" {
		limit = s.errors.Capacity()
	} else if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid limit %q", raw),
			})
			return
		}
		limit = n
	}

	records := s.errors.Recent(limit)
	writeJSON(w, http.StatusOK, ErrorsResponse{Errors: records, Total: s.errors.Len()})
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	s.errors.Clear()
	s.log.Info("Error history cleared", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
