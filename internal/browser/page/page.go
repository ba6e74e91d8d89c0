// internal/browser/page/page.go
// Package page exposes named Locator construction patterns bound to one host
// document, plus page readiness waiting.
package page

import (
	"context"
	"time"

	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"go.uber.org/zap"
)

// DefaultReadyTimeout bounds WaitForReady when the caller passes zero.
const DefaultReadyTimeout = 10000 * time.Millisecond

// Page builds Locators against a Host. A Page created by Within scopes every
// Locator it builds to the element its scope Locator resolves to.
type Page struct {
	host   dom.Host
	engine *dom.Engine
	scope  *dom.Locator
}

// New binds a Page to host.
func New(host dom.Host, engine *dom.Engine) *Page {
	return &Page{host: host, engine: engine}
}

// Host returns the underlying document host.
func (p *Page) Host() dom.Host { return p.host }

// Within returns a Page whose Locators search under scope.
func (p *Page) Within(scope *dom.Locator) *Page {
	return &Page{host: p.host, engine: p.engine, scope: scope}
}

func (p *Page) locate(s dom.Strategy) *dom.Locator {
	l := p.engine.Locate(p.host, s)
	if p.scope != nil {
		l = l.Within(p.scope)
	}
	return l
}

// ByRole locates elements by ARIA role. A nil name accepts the first element.
func (p *Page) ByRole(role string, name *dom.Match) *dom.Locator {
	l := p.locate(dom.ByRole(role))
	if name != nil {
		l = l.Matching(name)
	}
	return l
}

// ByTestID locates elements by data-testid.
func (p *Page) ByTestID(id string) *dom.Locator {
	return p.locate(dom.ByTestID(id))
}

// ByText locates the innermost element whose own text satisfies m.
func (p *Page) ByText(m *dom.Match) *dom.Locator {
	return p.locate(dom.ByText()).Matching(m)
}

// ByPlaceholder locates form controls whose placeholder contains text.
func (p *Page) ByPlaceholder(text string) *dom.Locator {
	return p.locate(dom.ByPlaceholder(text))
}

// ByAttribute locates elements carrying an attribute, optionally with an exact value.
func (p *Page) ByAttribute(name, value string) *dom.Locator {
	return p.locate(dom.ByAttribute(name, value))
}

// Raw locates elements by a CSS selector.
func (p *Page) Raw(selector string) *dom.Locator {
	return p.locate(dom.Raw(selector))
}

// WaitForReady polls the host's ready state until it reports "complete". When the
// budget runs out while the document is "interactive" the page is accepted as
// ready; otherwise a *dom.TimeoutError is returned.
func (p *Page) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	logger := p.engine.Logger()
	start := time.Now()
	for {
		state, err := p.host.ReadyState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Ready state unavailable.", zap.Error(err))
		}
		if state == "complete" {
			return nil
		}
		elapsed := time.Since(start)
		if elapsed >= timeout {
			if state == "interactive" {
				logger.Debug("Accepting interactive document at ready deadline.", zap.Duration("elapsed", elapsed))
				return nil
			}
			return &dom.TimeoutError{Locator: "document.readyState", Elapsed: elapsed, Timeout: timeout}
		}
		wait := p.engine.PollInterval()
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		if err := dom.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
