// Package server implements the HTTP server that exposes the events
// assistant as a small JSON API: one chat endpoint plus health, readiness,
// metrics and index reload. The server is started by the `sortir serve`
// CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/sortir-go/internal/logging"
)

// New constructs a Server from the provided responder and config.
func New(r chatResponder, cfg *Config) (*Server, error) {
	if r == nil {
		return nil, fmt.Errorf("server: responder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 90 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 10*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.HistoryDepth == 0 {
		cfg.HistoryDepth = 10
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		responder: r,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	rl.trustProxy = cfg.TrustProxy
	rl.onReject = s.metrics.rateLimitedTotal.Inc
	s.stopRL = stop

	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", rl.middleware(protect(s.handleChat)))
	mux.Handle("DELETE /api/sessions/{id}", protect(s.handleSessionDelete))
	mux.Handle("POST /api/index/reload", protect(s.handleIndexReload))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	if cfg.APIKey == "" {
		log.Warn("server: SORTIR_API_KEY is not set, authentication is disabled")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.metrics.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the fully wrapped HTTP handler. Used by tests to drive the
// real middleware chain through httptest.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndexReload handles POST /api/index/reload. The running index is
// kept when the reload fails.
func (s *Server) handleIndexReload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ReloadIndex == nil {
		writeError(w, r, http.StatusNotImplemented, "index reload is not available for this backend")
		return
	}
	if err := s.cfg.ReloadIndex(r.Context()); err != nil {
		s.metrics.indexReloadsTotal.WithLabelValues("error").Inc()
		logging.FromContext(r.Context()).Error("index reload failed", slog.Any("error", err))
		writeJSON(w, r, http.StatusInternalServerError, reloadResponse{Error: err.Error()})
		return
	}
	s.metrics.indexReloadsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, r, http.StatusOK, reloadResponse{Reloaded: true})
}

// errorResponse is the JSON body of every 4xx and 5xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes {"error": msg} with the given status code.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("encode response", slog.Any("error", err))
	}
}
