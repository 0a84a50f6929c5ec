package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// statusProvider is the part of the daemon the HTTP server reports on
type statusProvider interface {
	GetStatus() *DaemonStatus
}

// HTTPServer provides health checks and metrics endpoints
type HTTPServer struct {
	port    int
	daemon  statusProvider
	metrics bool
	server  *http.Server
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(port int, daemon statusProvider, metrics bool) *HTTPServer {
	s := &HTTPServer{
		port:    port,
		daemon:  daemon,
		metrics: metrics,
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *HTTPServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/ready", s.readinessHandler)
	mux.HandleFunc("/readyz", s.readinessHandler)
	mux.HandleFunc("/status", s.statusHandler)

	if s.metrics {
		mux.Handle("/metrics", GetMetricsHandler())
	}
	return mux
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// healthHandler responds to health check requests
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "aurora-advisor",
	})
}

// readinessHandler reports ready once the first cycle has completed
func (s *HTTPServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.daemon == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "daemon not initialized",
		})
		return
	}

	if s.daemon.GetStatus().Cycles == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "first cycle has not completed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// statusHandler provides detailed daemon status
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if s.daemon == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "daemon not available",
		})
		return
	}

	writeJSON(w, http.StatusOK, s.daemon.GetStatus())
}
