package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/logger"
	"github.com/tphakala/healthmon/internal/observability"
)

// Server is the admin HTTP server
type Server struct {
	echo       *echo.Echo
	config     *Config
	log        logger.Logger
	metrics    *observability.Metrics
	controller *Controller

	health    HealthReader
	rules     HealthRules
	predictor QueuePredictor
	checker   Checker
	alerts    AlertManager

	wg      sync.WaitGroup
	errOnce sync.Once
	errCh   chan error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes the prometheus registry at /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMonitor wires the monitoring components behind the health routes.
func WithMonitor(health HealthReader, rules HealthRules, predictor QueuePredictor, checker Checker) ServerOption {
	return func(s *Server) {
		s.health = health
		s.rules = rules
		s.predictor = predictor
		s.checker = checker
	}
}

// WithAlerts wires the alert engine behind the alert routes.
func WithAlerts(alerts AlertManager) ServerOption {
	return func(s *Server) {
		s.alerts = alerts
	}
}

// NewServer creates the admin HTTP server. The monitor and alert components
// are required.
func NewServer(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		log:    GetLogger(),
		errCh:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil || s.rules == nil || s.predictor == nil || s.checker == nil || s.alerts == nil {
		return nil, errors.Newf("api server requires monitor and alert components").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	if s.metrics != nil {
		s.metrics.RegisterHandlers(s.echo)
	}
	s.controller = NewController(s.echo.Group("/api/v1"), s.health, s.rules, s.predictor, s.checker, s.alerts)

	s.log.Info("admin HTTP server initialized",
		logger.String("address", config.Listen),
		logger.Bool("metrics", s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(TraceIDFromRequestID)
	s.echo.Use(NewRequestLogger(s.log))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Serve errors other than a clean shutdown are delivered on Err.
func (s *Server) Start() {
	s.wg.Go(func() {
		s.log.Info("starting admin HTTP server", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wrapped := errors.New(err).
				Component("api").
				Category(errors.CategoryNetwork).
				Context("listen", s.config.Listen).
				Build()
			s.log.Error("admin HTTP server stopped", logger.Error(wrapped))
			s.errOnce.Do(func() { s.errCh <- wrapped })
		}
	})
}

// Err reports a fatal serve error, e.g. the listen address already in use
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Shutdown gracefully stops the server, waiting at most ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during admin HTTP server shutdown", logger.Error(err))
		return errors.New(err).
			Component("api").
			Category(errors.CategoryTimeout).
			Build()
	}
	s.wg.Wait()

	s.log.Info("admin HTTP server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Controller returns the /api/v1 controller
func (s *Server) Controller() *Controller {
	return s.controller
}
