package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/lylin/knowbase/internal/log"
)

// Embed requests must pin the output dimensionality to the chunks
// schema; Gemini embedders otherwise return their native size and the
// vector(768) column rejects the insert.
func TestStore_EmbedRequestsPinDimensionality(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	var got *ai.EmbedRequest
	capture := genkit.DefineEmbedder(g, "mock/capture-embedder", &ai.EmbedderOptions{},
		func(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			got = req
			return nil, errors.New("capture only")
		})

	store := New(nil, capture, log.NewNop())

	assertPinned := func(t *testing.T) {
		t.Helper()
		require.NotNil(t, got)
		cfg, ok := got.Options.(*genai.EmbedContentConfig)
		require.True(t, ok, "embed options must be *genai.EmbedContentConfig, got %T", got.Options)
		require.NotNil(t, cfg.OutputDimensionality)
		assert.EqualValues(t, EmbedDim, *cfg.OutputDimensionality)
	}

	t.Run("search", func(t *testing.T) {
		got = nil
		_, err := store.Search(ctx, "query", 3)
		require.Error(t, err)
		assertPinned(t)
	})

	t.Run("add", func(t *testing.T) {
		got = nil
		_, err := store.Add(ctx, []Chunk{{Content: "chunk", SourceFile: "a.md"}})
		require.Error(t, err)
		assertPinned(t)
	})
}
