package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kinji/internal/config"
)

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 12, CacheSize: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, e.Dimensions())
	_, cached := e.(*CachedEmbedder)
	assert.True(t, cached)

	e, err = New(config.EmbeddingConfig{Provider: "mock", Dimensions: 12}, nil)
	require.NoError(t, err)
	_, isMock := e.(*MockEmbedder)
	assert.True(t, isMock)

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"}, nil)
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = New(config.EmbeddingConfig{Provider: "openai", Dimensions: 8}, nil)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "openai/text-embedding-3-small", ModelName(config.EmbeddingConfig{Provider: "openai"}))
	assert.Equal(t, "openai/m", ModelName(config.EmbeddingConfig{Provider: "openai", Model: "m"}))
	assert.Equal(t, "mock/8", ModelName(config.EmbeddingConfig{Provider: "mock", Dimensions: 8}))
}
