// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext derives a context from primary that is also cancelled when
// secondary is done. Values come from primary only, which is what chromedp
// needs: primary carries the tab, secondary the caller's deadline. Cancellation
// caused by secondary surfaces as context.Canceled.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that keeps ctx's values but none of its deadline or
// cancellation, for cleanup that must run after the caller has given up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
