// internal/browser/session/context_utils_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

const testKey ctxKey = "tab"

func TestCombineContext(t *testing.T) {
	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), testKey, "t1")
		secondary := context.WithValue(context.Background(), testKey, "ignored")

		ctx, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "t1", ctx.Value(testKey))
		assert.NoError(t, ctx.Err())
	})

	t.Run("CancelledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("DeadlineFromPrimary", func(t *testing.T) {
		deadline := time.Now().Add(50 * time.Millisecond)
		primary, cancelPrimary := context.WithDeadline(context.Background(), deadline)
		defer cancelPrimary()

		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, deadline, got)
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("SecondaryDeadlineSurfacesAsCanceled", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelSecondary()

		ctx, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("ExplicitCancellation", func(t *testing.T) {
		ctx, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	parent, cancelParent := context.WithTimeout(context.WithValue(context.Background(), testKey, "t1"), time.Hour)
	detached := Detach(parent)
	cancelParent()

	assert.ErrorIs(t, parent.Err(), context.Canceled)
	assert.Equal(t, "t1", detached.Value(testKey))
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)

	derived, cancelDerived := context.WithTimeout(detached, 20*time.Millisecond)
	defer cancelDerived()
	<-derived.Done()
	assert.ErrorIs(t, derived.Err(), context.DeadlineExceeded)
}
