// Package http exposes the risk engine over a JSON API: attendance writes,
// recomputation and alert triggers, the dashboard read models, health probes
// and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/teamvidya/risk-hub/config"
	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/application/query"
	"github.com/teamvidya/risk-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	AllowedOrigins []string

	// APIKeyHashes are bcrypt hashes guarding the write endpoints. Empty
	// leaves them open.
	APIKeyHashes []string

	EnableMetrics bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   4 << 20,
		AllowedOrigins: []string{"*"},
		EnableMetrics:  true,
	}
}

// ConfigFrom builds the server configuration from the application settings.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Addr = cfg.HTTP.Addr
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.IdleTimeout = cfg.HTTP.IdleTimeout
	c.AllowedOrigins = cfg.HTTP.AllowedOrigins
	c.APIKeyHashes = cfg.HTTP.APIKeyHashes
	c.EnableMetrics = cfg.Observability.MetricsEnabled
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the handlers the server dispatches to.
type Dependencies struct {
	// Commands
	Attendance *command.AttendanceHandler
	Engine     *command.Engine
	Alerts     *command.SendAlertsHandler
	Train      *command.TrainModelHandler

	// Queries
	Dashboard   *query.DashboardHandler
	Suggestions *query.SuggestionHandler
	History     *query.HistoryHandler

	Health  *HealthChecker
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Version string
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
	keys       *KeyVerifier
	validate   *validator.Validate
	logger     *slog.Logger

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(deps.Version)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config:   cfg,
		deps:     deps,
		router:   http.NewServeMux(),
		keys:     NewKeyVerifier(cfg.APIKeyHashes),
		validate: newValidator(),
		logger:   deps.Logger.With("component", "http"),
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)
	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Probes
	// ─────────────────────────────────────────────────────────────────────────
	s.route("GET /health", s.handleHealth, false)
	s.route("GET /ready", s.handleReady, false)
	if s.config.EnableMetrics && s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Attendance and triggers
	// ─────────────────────────────────────────────────────────────────────────
	s.route("POST /mark-attendance", s.handleMarkAttendance, true)
	s.route("POST /update-historical-attendance", s.handleHistoricalAttendance, true)
	s.route("POST /send-bulk-alert", s.handleSendBulkAlert, true)
	s.route("POST /api/v1/recompute", s.handleRecompute, true)
	s.route("POST /api/v1/model/train", s.handleTrainModel, true)

	// ─────────────────────────────────────────────────────────────────────────
	// Dashboard reads
	// ─────────────────────────────────────────────────────────────────────────
	s.route("GET /api/students", s.handleStudents, false)
	s.route("GET /api/kpi-stats", s.handleKPIStats, false)
	s.route("GET /api/dashboard-stats", s.handleDashboardStats, false)
	s.route("GET /api/mentor-suggestion/{id}", s.handleMentorSuggestion, false)
	s.route("GET /get-student-attendance/{id}", s.handleRecentAttendance, false)
	s.route("GET /get-student-full-attendance/{id}", s.handleFullAttendance, false)
}

// route registers h under pattern, guarded by the API key when protected,
// and records request metrics labelled by the pattern.
func (s *Server) route(pattern string, h http.HandlerFunc, protected bool) {
	var handler http.Handler = h
	if protected {
		handler = requireAPIKey(s.keys, handler)
	}
	s.router.Handle(pattern, s.instrument(pattern, handler))
}

func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	if s.deps.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapResponseWriter(w)
		next.ServeHTTP(rw, r)
		s.deps.Metrics.ObserveRequest(r.Method, pattern, rw.status, time.Since(start))
	})
}

// buildMiddlewareChain wraps h so that the request id is assigned first and
// panics are recovered inside the logging layer.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	chain := []Middleware{
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		recoveryMiddleware(s.logger),
		corsMiddleware(s.config.AllowedOrigins),
	}
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("http: listen on %s: %w", s.config.Addr, err)
	}
	return s.serve(ln)
}

// StartAsync starts serving in a goroutine. Serve errors are sent on the
// returned channel.
func (s *Server) StartAsync() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("http: listen on %s: %w", s.config.Addr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serve(ln)
		close(errCh)
	}()
	return errCh, nil
}

func (s *Server) serve(ln net.Listener) error {
	s.mu.Lock()
	s.running = true
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
