// Package httpapi serves the operational HTTP surface: Prometheus metrics,
// liveness, readiness and the activity status board.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/sitepower/core/logger"
	"github.com/kilianp07/sitepower/infra/metrics"
)

// Config holds the listen address. An empty Addr disables the server.
type Config struct {
	Addr              string `json:"addr"`
	ReadinessTimeoutS int    `json:"readiness_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ReadinessTimeoutS == 0 {
		c.ReadinessTimeoutS = 2
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.ReadinessTimeoutS < 0 {
		return fmt.Errorf("http: readiness_timeout_seconds must not be negative")
	}
	return nil
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Server is the operational HTTP server.
type Server struct {
	router   *chi.Mux
	srv      *http.Server
	checks   map[string]Check
	board    *metrics.StatusBoard
	gatherer prometheus.Gatherer
	timeout  time.Duration
	log      logger.Logger
}

// Option customises a Server.
type Option func(*Server)

// WithCheck adds a readiness check.
func WithCheck(name string, c Check) Option {
	return func(s *Server) { s.checks[name] = c }
}

// WithStatusBoard exposes board on /status.
func WithStatusBoard(b *metrics.StatusBoard) Option {
	return func(s *Server) { s.board = b }
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router.
func New(cfg Config, log logger.Logger, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{
		router:   chi.NewRouter(),
		checks:   map[string]Check{},
		gatherer: prometheus.DefaultGatherer,
		timeout:  time.Duration(cfg.ReadinessTimeoutS) * time.Second,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.board != nil {
		s.router.Get("/status", s.handleStatus)
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http server shutdown: %v", err)
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	names := make([]string, 0, len(s.checks))
	for n := range s.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	res := readiness{Status: "ok", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, n := range names {
		if err := s.checks[n](ctx); err != nil {
			res.Checks[n] = err.Error()
			res.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[n] = "ok"
	}
	writeJSON(w, code, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
