// internal/browser/dom/engine.go
// Package dom implements resilient element resolution and interaction against a
// document tree the caller does not control. A Locator describes how to find one
// element; the Engine carries the shared timing defaults and logger that every
// Locator built from it uses when polling, validating visibility and synthesizing
// input event sequences.
//
// The package is host-agnostic. The live browser tree (internal/browser/session)
// and the offline snapshot tree (internal/browser/dom/htmltree) both satisfy the
// Node and Host interfaces, so the same resolution logic runs against either.
package dom

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds WaitFor and every action built on it.
	DefaultTimeout = 5000 * time.Millisecond
	// DefaultPollInterval is the fixed delay between resolution probes.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultEventPause is inserted after every synthesized event so that the
	// host application's listeners observe a human-paced stream.
	DefaultEventPause = 50 * time.Millisecond
)

// Engine holds the configuration shared by the Locators it creates.
type Engine struct {
	logger     *zap.Logger
	timeout    time.Duration
	poll       time.Duration
	eventPause time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDefaultTimeout overrides the WaitFor budget used when a call passes zero.
func WithDefaultTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPollInterval overrides the delay between resolution probes.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.poll = d
		}
	}
}

// WithEventPause overrides the pause after each synthesized event. Zero disables it.
func WithEventPause(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.eventPause = d
		}
	}
}

// NewEngine creates an Engine. A nil logger is replaced with a no-op logger.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:     logger.Named("dom"),
		timeout:    DefaultTimeout,
		poll:       DefaultPollInterval,
		eventPause: DefaultEventPause,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Locate creates a Locator evaluated against the root of host.
func (e *Engine) Locate(host Host, s Strategy) *Locator {
	return &Locator{engine: e, host: host, strategy: s}
}

// Timeout returns the default WaitFor budget.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// PollInterval returns the delay between resolution probes.
func (e *Engine) PollInterval() time.Duration { return e.poll }

// Logger returns the engine's named logger.
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
