// internal/browser/dom/locator.go
package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Locator is a declarative description of how to find one element. It holds no
// mutable state; the builder methods return copies so that every resolution
// attempt can own its Locator.
type Locator struct {
	engine   *Engine
	host     Host
	parent   *Locator
	strategy Strategy
	match    *Match
}

// Within returns a copy of the Locator scoped to the element parent resolves to.
func (l *Locator) Within(parent *Locator) *Locator {
	c := *l
	c.parent = parent
	return &c
}

// Matching returns a copy of the Locator that only accepts elements whose
// accessible name, text or title satisfies m.
func (l *Locator) Matching(m *Match) *Locator {
	c := *l
	c.match = m
	return &c
}

// Strategy returns the structural strategy of the Locator.
func (l *Locator) Strategy() Strategy { return l.strategy }

func (l *Locator) String() string {
	var b strings.Builder
	if l.parent != nil {
		b.WriteString(l.parent.String())
		b.WriteString(" >> ")
	}
	b.WriteString(l.strategy.String())
	if l.match != nil {
		b.WriteString("[name~")
		b.WriteString(l.match.String())
		b.WriteString("]")
	}
	return b.String()
}

// Resolve evaluates the Locator against the current tree. Internal errors are
// logged and reported as not found so that polling callers can retry.
func (l *Locator) Resolve(ctx context.Context) (Node, bool) {
	n, err := l.resolve(ctx)
	if err != nil {
		l.engine.logger.Debug("Locator resolution failed.", zap.Stringer("locator", l), zap.Error(err))
		return nil, false
	}
	return n, n != nil
}

func (l *Locator) resolve(ctx context.Context) (Node, error) {
	scope, err := l.scope(ctx)
	if err != nil || scope == nil {
		return nil, err
	}
	nodes, err := scope.QueryAll(ctx, l.strategy.Selector())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", l.strategy.Selector(), err)
	}
	if l.match == nil {
		if len(nodes) == 0 {
			return nil, nil
		}
		return nodes[0], nil
	}
	// First document-order match wins. No ranking.
	for _, n := range nodes {
		desc, err := n.Describe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.engine.logger.Debug("Skipping candidate that could not be described.", zap.Error(err))
			continue
		}
		if l.accepts(desc) {
			return n, nil
		}
	}
	return nil, nil
}

func (l *Locator) scope(ctx context.Context) (Node, error) {
	if l.parent == nil {
		doc, err := l.host.Document(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire document: %w", err)
		}
		return doc, nil
	}
	return l.parent.resolve(ctx)
}

// accepts applies the match criterion. Text locators only look at the element's
// own text so that ancestors never shadow the innermost element.
func (l *Locator) accepts(d Description) bool {
	if l.strategy.Kind == KindText {
		return l.match.MatchString(d.OwnText)
	}
	for _, candidate := range []string{d.Attr("aria-label"), d.Text, d.Attr("title")} {
		if l.match.MatchString(candidate) {
			return true
		}
	}
	return false
}

func (l *Locator) visible(ctx context.Context, n Node) bool {
	g, err := n.Geometry(ctx)
	if err != nil {
		l.engine.logger.Debug("Geometry unavailable.", zap.Stringer("locator", l), zap.Error(err))
		return false
	}
	return g.Visible()
}

// IsVisible resolves the Locator once and applies the visibility predicate.
func (l *Locator) IsVisible(ctx context.Context) bool {
	n, ok := l.Resolve(ctx)
	return ok && l.visible(ctx, n)
}

// WaitOptions bounds a WaitFor call. Zero values take the engine defaults.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// WaitFor polls Resolve at a fixed interval until the element is found and
// visible, or until the timeout elapses and a *TimeoutError is returned. The last
// probe is scheduled at the deadline, so a failing call returns no earlier than
// the timeout and no later than the timeout plus one poll interval.
func (l *Locator) WaitFor(ctx context.Context, opts WaitOptions) (Node, error) {
	return l.waitFor(ctx, opts.Timeout, opts.PollInterval, true)
}

func (l *Locator) waitFor(ctx context.Context, timeout, poll time.Duration, requireVisible bool) (Node, error) {
	if timeout <= 0 {
		timeout = l.engine.timeout
	}
	if poll <= 0 {
		poll = l.engine.poll
	}
	start := time.Now()
	for {
		if n, ok := l.Resolve(ctx); ok && (!requireVisible || l.visible(ctx, n)) {
			return n, nil
		}
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return nil, &TimeoutError{Locator: l.String(), Elapsed: elapsed, Timeout: timeout}
		}
		wait := poll
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		if err := Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// acquire waits for the action target and translates a timeout into the
// resolution-layer error an action reports.
func (l *Locator) acquire(ctx context.Context, timeout time.Duration, force bool) (Node, error) {
	n, err := l.waitFor(ctx, timeout, 0, !force)
	if err == nil {
		return n, nil
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		return nil, err
	}
	if !force {
		if _, present := l.Resolve(ctx); present {
			return nil, &ElementNotVisibleError{Locator: l.String(), Cause: err}
		}
	}
	return nil, &ElementNotFoundError{Locator: l.String(), Cause: err}
}
