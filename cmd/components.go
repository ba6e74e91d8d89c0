// cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/internal/api"
	"github.com/xkilldash9x/sendlater/internal/api/client"
	"github.com/xkilldash9x/sendlater/internal/automation"
	"github.com/xkilldash9x/sendlater/internal/browser/dom"
	"github.com/xkilldash9x/sendlater/internal/browser/session"
	"github.com/xkilldash9x/sendlater/internal/config"
	"github.com/xkilldash9x/sendlater/internal/worker"
)

const runnerTokenTTL = 10 * time.Minute

// newEngine builds the interaction engine from the interaction section.
func newEngine(cfg config.Interface, logger *zap.Logger) *dom.Engine {
	ic := cfg.Interaction()
	return dom.NewEngine(logger,
		dom.WithDefaultTimeout(ic.DefaultTimeout),
		dom.WithPollInterval(ic.PollInterval),
		dom.WithEventPause(ic.EventPause))
}

// automationSettings converts the automation section into script settings.
func automationSettings(cfg config.Interface) (automation.Settings, error) {
	ac := cfg.Automation()
	mode, err := automation.ParseVerifyMode(ac.Verify)
	if err != nil {
		return automation.Settings{}, err
	}
	s := automation.DefaultSettings()
	s.Verify = mode
	for dst, src := range map[*time.Duration]time.Duration{
		&s.SearchTimeout:   ac.SearchTimeout,
		&s.ContactTimeout:  ac.ContactTimeout,
		&s.HeaderTimeout:   ac.HeaderTimeout,
		&s.ComposerTimeout: ac.ComposerTimeout,
		&s.SendTimeout:     ac.SendTimeout,
	} {
		if src > 0 {
			*dst = src
		}
	}
	// Zero is a valid settle delay.
	s.SelectSettle = ac.SelectSettle
	s.SendSettle = ac.SendSettle
	return s, nil
}

// newBrowserWorker starts nothing yet: the browser launches on the first Open.
func newBrowserWorker(cfg config.Interface, logger *zap.Logger) (*worker.Worker, *session.Manager, error) {
	settings, err := automationSettings(cfg)
	if err != nil {
		return nil, nil, err
	}
	manager := session.NewManager(cfg.Browser(), logger)
	opts := []worker.Option{worker.WithSettings(settings)}
	if rt := cfg.Interaction().ReadyTimeout; rt > 0 {
		opts = append(opts, worker.WithReadyTimeout(rt))
	}
	return worker.New(manager, newEngine(cfg, logger), logger, opts...), manager, nil
}

// closeManager shuts the browser down within a bounded time.
func closeManager(m *session.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		logger.Warn("Browser shutdown error", zap.Error(err))
	}
}

// newAPIClient returns a client for the daemon configured in the api section.
func newAPIClient(cfg config.Interface) (*client.Client, error) {
	ac := cfg.API()
	return client.New(ac.BaseURL, client.WithSecret(ac.AuthSecret))
}

// runnerHeader signs a fresh bearer token for each runner handshake.
func runnerHeader(secret string) func() (http.Header, error) {
	return func() (http.Header, error) {
		if secret == "" {
			return nil, nil
		}
		token, err := api.MintToken([]byte(secret), "sendlater-runner", runnerTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign runner token: %w", err)
		}
		return http.Header{"Authorization": {"Bearer " + token}}, nil
	}
}
