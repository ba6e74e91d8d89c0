// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/automation"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/page"
)

// Reasons reported by the worker itself, before the automation script runs.
const (
	ReasonInvalidRequest = "InvalidRequest"
	ReasonNoSession      = "NoActiveSession"
	ReasonPageNotReady   = "PageNotReady"
)

// ContextHost owns the host application session the worker drives.
type ContextHost interface {
	// Available reports whether a session of the host application is open.
	Available(ctx context.Context) bool
	// Open opens or activates a session.
	Open(ctx context.Context) error
	// Page returns the document of the active session.
	Page(ctx context.Context) (dom.Host, error)
}

// Worker executes requests in the execution context. It serves as the central
// dispatcher, routing each request action to the session host or the automation script.
type Worker struct {
	host         ContextHost
	engine       *dom.Engine
	logger       *zap.Logger
	settings     automation.Settings
	readyTimeout time.Duration
}

// Option is a function that configures a Worker.
type Option func(*Worker)

// WithSettings overrides the automation budgets.
func WithSettings(s automation.Settings) Option {
	return func(w *Worker) {
		w.settings = s
	}
}

// WithReadyTimeout bounds the page readiness wait before each dispatch.
func WithReadyTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.readyTimeout = d
	}
}

// New initializes and returns a new worker instance.
func New(host ContextHost, engine *dom.Engine, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		host:         host,
		engine:       engine,
		logger:       logger.With(zap.String("component", "worker")),
		settings:     automation.DefaultSettings(),
		readyTimeout: page.DefaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.engine == nil {
		w.engine = dom.NewEngine(logger)
	}
	return w
}

// Handle executes a single request by routing it on its action.
func (w *Worker) Handle(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
	switch req.Action {
	case schemas.ActionStatus:
		return schemas.DispatchResponse{OK: w.host.Available(ctx)}
	case schemas.ActionOpen:
		if err := w.host.Open(ctx); err != nil {
			w.logger.Warn("Failed to open a host session.", zap.Error(err))
			return schemas.Unreachable(fmt.Sprintf("%s: %v", ReasonNoSession, err))
		}
		return schemas.Success()
	case schemas.ActionDispatch:
		return w.dispatch(ctx, req)
	default:
		return schemas.Failure(fmt.Sprintf("%s: unknown action %q", ReasonInvalidRequest, req.Action))
	}
}

func (w *Worker) dispatch(ctx context.Context, req schemas.DispatchRequest) schemas.DispatchResponse {
	if strings.TrimSpace(req.Recipient) == "" || req.Payload == "" {
		return schemas.Failure(ReasonInvalidRequest + ": recipient and payload are required")
	}
	log := w.logger.With(zap.String("request_id", req.ID))

	host, err := w.host.Page(ctx)
	if err != nil {
		log.Warn("No page to dispatch on.", zap.Error(err))
		return schemas.Unreachable(fmt.Sprintf("%s: %v", ReasonNoSession, err))
	}
	p := page.New(host, w.engine)
	if err := p.WaitForReady(ctx, w.readyTimeout); err != nil {
		if ctx.Err() != nil {
			return schemas.Failure(ctx.Err().Error())
		}
		log.Warn("Page did not become ready.", zap.Error(err))
		return schemas.Failure(ReasonPageNotReady)
	}

	log.Info("Dispatching to automation script.")
	script := automation.New(p, w.logger, automation.WithSettings(w.settings))
	if err := script.Send(ctx, req.Recipient, req.Payload); err != nil {
		var f *automation.Failure
		if errors.As(err, &f) {
			log.Warn("Dispatch failed.", zap.String("step", f.Step), zap.Error(err))
		} else {
			log.Error("Dispatch aborted.", zap.Error(err))
		}
		return schemas.Failure(automation.Reason(err))
	}
	log.Info("Dispatch finished.")
	return schemas.Success()
}
