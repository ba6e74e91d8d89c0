// internal/browser/session/tab.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/browser/dom"
)

// keepGroups is how many object groups stay alive. Each resolution opens a new
// group; nodes from the few most recent resolutions remain usable.
const keepGroups = 4

// Tab is one browser page. It implements dom.Host.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	seq    int
	groups []string
}

var _ dom.Host = (*Tab)(nil)

func newTab(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Tab {
	return &Tab{ctx: ctx, cancel: cancel, logger: logger}
}

// run executes fn against the tab, bounded by both the tab's lifetime and ctx.
func (t *Tab) run(ctx context.Context, fn func(ctx context.Context) error) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(fn))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Document returns the document element handle in a fresh object group.
func (t *Tab) Document(ctx context.Context) (dom.Node, error) {
	group, stale := t.nextGroup()
	var node *cdpNode
	err := t.run(ctx, func(ctx context.Context) error {
		for _, g := range stale {
			if err := runtime.ReleaseObjectGroup(g).Do(ctx); err != nil {
				t.logger.Debug("Failed to release object group.", zap.String("group", g), zap.Error(err))
			}
		}
		res, exc, err := runtime.Evaluate("document").WithObjectGroup(group).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		node = &cdpNode{tab: t, id: res.ObjectID, group: group}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate document: %w", err)
	}
	return node, nil
}

func (t *Tab) nextGroup() (string, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	group := fmt.Sprintf("sendlater-%d", t.seq)
	t.groups = append(t.groups, group)
	var stale []string
	if n := len(t.groups) - keepGroups; n > 0 {
		stale = append(stale, t.groups[:n]...)
		t.groups = t.groups[n:]
	}
	return group, stale
}

// ReadyState returns document.readyState.
func (t *Tab) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := t.run(ctx, func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate("document.readyState").WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return json.Unmarshal(res.Value, &state)
	})
	return state, err
}

// URL returns the tab's current location.
func (t *Tab) URL(ctx context.Context) (string, error) {
	var url string
	err := t.run(ctx, func(ctx context.Context) error {
		return chromedp.Location(&url).Do(ctx)
	})
	return url, err
}

// Navigate loads url, bounded by timeout.
func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	t.logger.Debug("Navigating.", zap.String("url", url))
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := t.run(navCtx, func(ctx context.Context) error {
		return chromedp.Navigate(url).Do(ctx)
	})
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("navigation timed out after %s: %w", timeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// close releases every live object group and detaches from the page.
func (t *Tab) close(ctx context.Context) {
	t.mu.Lock()
	groups := t.groups
	t.groups = nil
	t.mu.Unlock()

	releaseCtx, cancel := context.WithTimeout(Detach(ctx), 2*time.Second)
	defer cancel()
	_ = t.run(releaseCtx, func(ctx context.Context) error {
		for _, g := range groups {
			_ = runtime.ReleaseObjectGroup(g).Do(ctx)
		}
		return nil
	})
	if t.cancel != nil {
		t.cancel()
	}
}
