// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/api/alerts"
	"github.com/good-yellow-bee/tuskguard/internal/api/checks"
	"github.com/good-yellow-bee/tuskguard/internal/api/geofences"
	"github.com/good-yellow-bee/tuskguard/internal/api/gps"
	"github.com/good-yellow-bee/tuskguard/internal/api/health"
	"github.com/good-yellow-bee/tuskguard/internal/api/middleware"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string
	// JWTSecret enables bearer auth on admin routes when set.
	JWTSecret      []byte
	TokenTTL       time.Duration
	RateLimitPerIP int // ingest requests per minute per client IP
	RateLimitBurst int
	RequestTimeout time.Duration
	Version        string
	Verbose        bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 600
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 60
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Deps are the services the API exposes.
type Deps struct {
	Store     storage.Storage
	Ingester  gps.Ingester
	Geofences geofences.Service
	Checker   checks.Runner
	Raiser    alerts.Raiser
	Cooldowns alerts.CooldownReporter
	Logger    *zap.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("storage is required")
	case d.Ingester == nil:
		return errors.New("ingester is required")
	case d.Geofences == nil:
		return errors.New("geofence service is required")
	case d.Checker == nil:
		return errors.New("checker is required")
	case d.Raiser == nil:
		return errors.New("alert raiser is required")
	case d.Cooldowns == nil:
		return errors.New("cooldown reporter is required")
	}
	return nil
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
	ipLimiter     *middleware.RateLimiter
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	logger := logging.OrNop(deps.Logger)
	if len(cfg.JWTSecret) == 0 {
		logger.Warn("JWT secret not set, admin routes are unauthenticated")
	}

	s := &Server{
		config:        cfg,
		deps:          deps,
		logger:        logger,
		healthHandler: health.NewHandler(cfg.Version),
		ipLimiter:     middleware.NewRateLimiter(cfg.RateLimitPerIP, cfg.RateLimitBurst),
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer s.ipLimiter.Close()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
