package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmirror/internal/log"
)

func TestNew(t *testing.T) {
	t.Run("missing api key is rejected", func(t *testing.T) {
		_, err := New(Config{EmbeddingModel: "text-embedding-3-small", ChatModel: "gpt-4o-mini"}, log.NewNop())
		require.Error(t, err)
	})

	t.Run("rate limit defaults when unset", func(t *testing.T) {
		c, err := New(Config{
			APIKey:         "test-key",
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		}, log.NewNop())
		require.NoError(t, err)
		assert.Equal(t, float64(defaultEmbedRPS), float64(c.limiter.Limit()))
		assert.NotNil(t, c.Model())
	})
}
