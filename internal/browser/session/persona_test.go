// internal/browser/session/persona_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/sendlater/api/schemas"
)

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "", acceptLanguage(nil))
	assert.Equal(t, "de-DE", acceptLanguage([]string{"de-DE"}))
	assert.Equal(t, "en-US,en;q=0.9,de;q=0.8", acceptLanguage([]string{"en-US", "en", "de"}))

	many := make([]string, 12)
	for i := range many {
		many[i] = "x"
	}
	assert.Contains(t, acceptLanguage(many), "x;q=0.1")
}

func TestPersonaTasks(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, personaTasks(schemas.Persona{}, zap.NewNop()))
	})

	t.Run("Full", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		p := schemas.DefaultPersona
		p.Timezone = "Europe/Berlin"

		tasks := personaTasks(p, zap.New(core))
		assert.Len(t, tasks, 4)

		entries := logs.FilterMessage("Applying browser persona").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "Europe/Berlin", fields["timezone"])
		assert.Equal(t, "en-US", fields["locale"])
	})

	t.Run("LocaleOnly", func(t *testing.T) {
		tasks := personaTasks(schemas.Persona{Locale: "fr-FR"}, zap.NewNop())
		assert.Len(t, tasks, 1)
	})
}
