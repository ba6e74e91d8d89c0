// internal/browser/session/persona.go
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/api/schemas"
)

// languagesScript keeps navigator.languages in line with the Accept-Language header.
const languagesScript = `(() => {
  const langs = Object.freeze(%s);
  Object.defineProperty(Navigator.prototype, 'languages', { get: () => langs, configurable: true });
})();`

// acceptLanguage renders languages as an Accept-Language value with descending weights.
func acceptLanguage(langs []string) string {
	parts := make([]string, 0, len(langs))
	for i, l := range langs {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}

// personaTasks builds the per-tab overrides for p. Fields left empty keep the
// browser's own value; the user agent and window size are launch flags instead.
func personaTasks(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("timezone", p.Timezone),
		zap.String("locale", p.Locale),
		zap.Strings("languages", p.Languages))

	var tasks chromedp.Tasks
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if len(p.Languages) > 0 {
		langs, err := json.Marshal(p.Languages)
		if err != nil {
			logger.Warn("Could not encode persona languages.", zap.Error(err))
			return tasks
		}
		script := fmt.Sprintf(languagesScript, langs)
		tasks = append(tasks,
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage(p.Languages)}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
					return fmt.Errorf("failed to inject languages script: %w", err)
				}
				return nil
			}),
		)
	}
	return tasks
}

// applyPersona runs the persona overrides on tabCtx. Failures are logged: the
// application works without them.
func (m *Manager) applyPersona(tabCtx context.Context) {
	tasks := personaTasks(m.cfg.Persona, m.logger)
	if len(tasks) == 0 {
		return
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		m.logger.Warn("Could not apply the browser persona.", zap.Error(err))
	}
}
