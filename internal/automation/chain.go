// internal/automation/chain.go
package automation

import (
	"context"
	"time"

	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/page"
	"go.uber.org/zap"
)

// Candidate is one independent way of locating a logical control.
type Candidate struct {
	Name  string
	Build func(p *page.Page) *dom.Locator
}

// Chain is an ordered list of Candidates evaluated left to right. A candidate is
// abandoned as soon as its own wait times out and the next one starts a fresh
// window; exhausting the chain is reported as the chain's Kind.
type Chain struct {
	Name       string
	Kind       error
	Timeout    time.Duration
	Candidates []Candidate
}

// Acquire returns the Locator of the first candidate that becomes visible.
func (c Chain) Acquire(ctx context.Context, p *page.Page, logger *zap.Logger) (*dom.Locator, error) {
	var last error
	for _, cand := range c.Candidates {
		loc := cand.Build(p)
		if _, err := loc.WaitFor(ctx, dom.WaitOptions{Timeout: c.Timeout}); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("Candidate abandoned.", zap.String("chain", c.Name), zap.String("candidate", cand.Name), zap.Error(err))
			last = err
			continue
		}
		logger.Debug("Candidate adopted.", zap.String("chain", c.Name), zap.String("candidate", cand.Name))
		return loc, nil
	}
	return nil, &Failure{Kind: c.Kind, Step: c.Name, Err: last}
}

// Peek evaluates every candidate once, without waiting, and returns the name of
// the first visible one.
func (c Chain) Peek(ctx context.Context, p *page.Page) (string, bool) {
	for _, cand := range c.Candidates {
		if cand.Build(p).IsVisible(ctx) {
			return cand.Name, true
		}
	}
	return "", false
}
