// Package api serves the VPN report endpoint, the status surface and the
// HTML status page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"bt-dns-manager/pkg/device"
	"bt-dns-manager/pkg/ratelimit"
	"bt-dns-manager/pkg/reconcile"
	"bt-dns-manager/pkg/telemetry"
)

// Server represents the API server
type Server struct {
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	// Dependencies
	registry    *device.Registry
	metrics     *telemetry.Metrics
	rateLimiter *ratelimit.Manager
	lastResult  func() *reconcile.Result

	proxyMu        sync.RWMutex
	trustedProxies []netip.Prefix

	// Metadata
	version   string
	startTime time.Time
}

// Config holds API server configuration
type Config struct {
	ListenAddress  string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Registry       *device.Registry
	Metrics        *telemetry.Metrics
	RateLimiter    *ratelimit.Manager
	TrustedProxies []string
	// LastResult supplies the most recent reconciliation for the status page
	LastResult func() *reconcile.Result
	Logger     *slog.Logger
	Version    string
}

// New creates a new API server
func New(cfg *Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("api: registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if err := initTemplates(); err != nil {
		return nil, fmt.Errorf("api: parse templates: %w", err)
	}

	s := &Server{
		registry:    cfg.Registry,
		metrics:     cfg.Metrics,
		rateLimiter: cfg.RateLimiter,
		lastResult:  cfg.LastResult,
		logger:      cfg.Logger,
		version:     cfg.Version,
		startTime:   time.Now(),
	}
	if err := s.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	// Setup routes
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Device reports and status
	mux.Handle("POST /api/report-ip", s.rateLimitMiddleware(http.HandlerFunc(s.handleReportIP)))
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Status page
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	// Apply middleware
	handler := s.withRequestLog(mux)
	handler = s.withCORS(handler)

	s.handler = handler
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetTrustedProxies replaces the CIDRs allowed to set forwarding headers.
func (s *Server) SetTrustedProxies(cidrs []string) error {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return fmt.Errorf("api: invalid trusted proxy %q: %w", cidr, err)
		}
		prefixes = append(prefixes, p.Masked())
	}

	s.proxyMu.Lock()
	s.trustedProxies = prefixes
	s.proxyMu.Unlock()
	return nil
}

// Start starts the API server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// getUptime returns the server uptime as a string
func (s *Server) getUptime() string {
	uptime := time.Since(s.startTime)

	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
