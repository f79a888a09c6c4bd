package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serverShutdownTimeout = 5 * time.Second
	serverReadTimeout     = 10 * time.Second
	serverWriteTimeout    = 10 * time.Second
	systemUpdateInterval  = 15 * time.Second
)

// Server exposes the metrics registry over HTTP while a run is in progress.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	metrics    *PrometheusMetrics
	logger     *slog.Logger
}

// NewServer creates a metrics server listening on addr. The registry is
// served at path and a liveness probe at /healthz.
func NewServer(addr, path string, pm *PrometheusMetrics, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	s := &Server{
		router:  router,
		metrics: pm,
		logger:  logger.With("component", "metrics"),
	}

	router.Handle(path, promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", s.healthHandler).Methods("GET")

	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           recovery(router),
		ReadHeaderTimeout: serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
	}

	return s
}

// Handler returns the root handler, including recovery middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting metrics server", "address", s.httpServer.Addr)

	go s.metrics.StartPeriodicUpdates(ctx, systemUpdateInterval)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	s.logger.Info("Metrics server stopped")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": s.metrics.GetUptime().String(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
