// internal/browser/session/manager.go
// Package session owns the Chromium instance that hosts the chat application and
// exposes its active tab as a dom.Host. The browser profile lives in a persistent
// user data directory so the application login survives restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/config"
)

// ErrNoSession is returned by Page when no tab shows the chat application.
var ErrNoSession = errors.New("no open session of the chat application")

const (
	defaultNavigationTimeout = 90 * time.Second
	probeTimeout             = 5 * time.Second
)

// Manager launches the browser on demand and tracks the tab showing the application.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tab           *Tab
}

// NewManager creates a Manager. The browser is not started until Open.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger.Named("session")}
}

// flags translates the browser configuration into command line switches.
func (m *Manager) flags() map[string]any {
	f := map[string]any{
		"no-first-run":                           true,
		"no-default-browser-check":               true,
		"disable-background-timer-throttling":    true,
		"disable-backgrounding-occluded-windows": true,
		"disable-renderer-backgrounding":         true,
	}
	if m.cfg.Headless {
		f["headless"] = true
		f["hide-scrollbars"] = true
		f["mute-audio"] = true
		f["disable-gpu"] = true
	}
	if m.cfg.UserDataDir != "" {
		f["user-data-dir"] = m.cfg.UserDataDir
	}
	p := m.cfg.Persona
	if p.Width > 0 && p.Height > 0 {
		f["window-size"] = fmt.Sprintf("%d,%d", p.Width, p.Height)
	}
	if p.UserAgent != "" {
		f["user-agent"] = p.UserAgent
	}
	if p.Locale != "" {
		f["lang"] = p.Locale
	}
	// Explicit args win over everything derived above.
	for _, arg := range m.cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			f[key] = value
		} else {
			f[arg] = true
		}
	}
	return f
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	for k, v := range m.flags() {
		opts = append(opts, chromedp.Flag(k, v))
	}
	return opts
}

// ensureBrowser starts Chromium with its first tab. Callers hold m.mu.
func (m *Manager) ensureBrowser() error {
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return nil
	}
	m.shutdownLocked(context.Background())

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.allocatorOptions()...)
	sugar := m.logger.Sugar()
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Infof),
		chromedp.WithErrorf(sugar.Errorf),
	}
	if m.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run launches the browser. It must not carry a deadline, as that
	// would bound the lifetime of the whole browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}
	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.tab = newTab(browserCtx, nil, m.logger)
	m.applyPersona(browserCtx)
	m.logger.Info("Browser started.", zap.Bool("headless", m.cfg.Headless), zap.String("profile", m.cfg.UserDataDir))
	return nil
}

func (m *Manager) onApp(url string) bool {
	return m.cfg.AppURL != "" && strings.HasPrefix(url, m.cfg.AppURL)
}

// Available reports whether the active tab shows the chat application.
func (m *Manager) Available(ctx context.Context) bool {
	m.mu.Lock()
	tab := m.tab
	alive := m.browserCtx != nil && m.browserCtx.Err() == nil
	m.mu.Unlock()
	if !alive || tab == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	url, err := tab.URL(probeCtx)
	if err != nil {
		m.logger.Debug("Could not read the tab location.", zap.Error(err))
		return false
	}
	return m.onApp(url)
}

// Open starts the browser if needed and makes a tab show the chat application:
// an existing application tab is adopted, otherwise the active tab navigates to it.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureBrowser(); err != nil {
		return err
	}
	if url, err := m.tab.URL(ctx); err == nil && m.onApp(url) {
		return nil
	}

	if id, ok := m.findAppTarget(ctx); ok {
		tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(id))
		if err := chromedp.Run(tabCtx); err == nil {
			m.logger.Info("Adopted an existing application tab.", zap.String("target", string(id)))
			if m.tab.cancel != nil {
				m.tab.close(ctx)
			}
			m.tab = newTab(tabCtx, cancel, m.logger)
			m.applyPersona(tabCtx)
			return nil
		}
		cancel()
	}

	timeout := m.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	if err := m.tab.Navigate(ctx, m.cfg.AppURL, timeout); err != nil {
		return err
	}
	m.logger.Info("Opened the chat application.", zap.String("url", m.cfg.AppURL))
	return nil
}

func (m *Manager) findAppTarget(ctx context.Context) (target.ID, bool) {
	targets, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		m.logger.Debug("Could not list targets.", zap.Error(err))
		return "", false
	}
	var current target.ID
	if c := chromedp.FromContext(m.tab.ctx); c != nil && c.Target != nil {
		current = c.Target.TargetID
	}
	for _, t := range targets {
		if t.Type == "page" && t.TargetID != current && m.onApp(t.URL) {
			return t.TargetID, true
		}
	}
	return "", false
}

// Page returns the tab showing the chat application.
func (m *Manager) Page(ctx context.Context) (dom.Host, error) {
	if !m.Available(ctx) {
		return nil, ErrNoSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tab, nil
}

// Close shuts the browser down. The profile directory is left in place.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownLocked(ctx)
	return nil
}

func (m *Manager) shutdownLocked(ctx context.Context) {
	if m.tab != nil {
		m.tab.close(ctx)
		m.tab = nil
	}
	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
		m.logger.Info("Browser stopped.")
	}
	m.browserCtx = nil
}
