// internal/api/server.go
// Package api is the producer surface of the daemon: a small REST API over the
// scheduler plus the websocket endpoint remote runners connect to.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/config"
)

const shutdownTimeout = 15 * time.Second

// Scheduler is the part of the scheduler the API exposes.
type Scheduler interface {
	Register(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error)
	List(ctx context.Context) ([]schemas.ScheduledAction, error)
	Cancel(ctx context.Context, id string) error
	Trigger(ctx context.Context, id string) error
}

// Server hosts the HTTP API.
type Server struct {
	cfg    config.APIConfig
	logger *zap.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	runners http.Handler
}

// WithRunnerEndpoint mounts h at /ws/runner.
func WithRunnerEndpoint(h http.Handler) Option {
	return func(o *serverOptions) { o.runners = h }
}

// NewServer builds the router. Authentication is enabled when cfg.AuthSecret is set.
func NewServer(cfg config.APIConfig, sched Scheduler, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.Named("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if cfg.AuthSecret == "" {
		logger.Warn("API authentication is disabled; set api.auth_secret to require bearer tokens.")
	}
	auth := Authenticator([]byte(cfg.AuthSecret))

	// The websocket endpoint stays outside the request logger and the rate limiter,
	// the connection is long lived.
	if o.runners != nil {
		r.With(auth).Get("/ws/runner", o.runners.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestLogger(logger))
		if cfg.RateLimit > 0 {
			burst := cfg.RateBurst
			if burst < 1 {
				burst = 1
			}
			r.Use(RateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
		}
		NewHandlers(sched, logger).RegisterRoutes(r, auth)
	})

	return &Server{cfg: cfg, logger: logger, router: r}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("API server starting.", zap.String("address", s.cfg.Listen))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API server shutdown error", zap.Error(err))
		return err
	}
	return nil
}
