// Package monitor exposes the read-only monitoring HTTP surface: capability
// discovery, aggregated health, and Prometheus metrics. Every route is a thin
// formatter over daemon accessors; no business logic lives here.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/vaultd/health"
	"github.com/c360studio/vaultd/metrics"
)

// Info is the GET / response.
type Info struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Server is the monitoring HTTP server.
type Server struct {
	srv     *http.Server
	version string
	logger  *slog.Logger
}

// New creates the monitoring server bound to addr.
func New(addr string, agg *health.Aggregator, tracker *metrics.Tracker, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{version: version, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth(agg))
	mux.Handle("/metrics", promhttp.HandlerFor(tracker.Registry(), promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Monitoring server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Monitoring server failed", "error", err)
		}
	}()
}

// Stop shuts the server down, bounded by the context deadline so it never
// blocks daemon shutdown.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleRoot serves capability discovery.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, Info{
		Name:      "vaultd",
		Version:   s.version,
		Endpoints: []string{"/", "/health", "/metrics"},
	})
}

// handleHealth serves the aggregated health report. The HTTP status mirrors
// the report: 200 when healthy, 503 otherwise.
func (s *Server) handleHealth(agg *health.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status := agg.Status()
		writeJSON(w, status.StatusCode, status)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("Failed to encode JSON response", "error", err)
	}
}
