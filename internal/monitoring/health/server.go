package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the aggregate health of this monitor node.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency (database, queue, overlay).
type Check func(ctx context.Context) error

// Server provides HTTP endpoints for health monitoring and metrics.
type Server struct {
	server *http.Server
	checks map[string]Check
	peers  func() []string
}

// NewServer creates a new health server.
func NewServer(port int, checks map[string]Check, peers func() []string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		checks: checks,
		peers:  peers,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) run(ctx context.Context) (Status, map[string]string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := StatusHealthy
	detail := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = StatusDegraded
			detail[name] = err.Error()
		} else {
			detail[name] = "ok"
		}
	}
	return status, detail
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, _ := s.run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status == StatusDegraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	status, detail := s.run(r.Context())

	response := map[string]any{
		"status":     status,
		"components": detail,
	}
	if s.peers != nil {
		response["peers"] = s.peers()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
