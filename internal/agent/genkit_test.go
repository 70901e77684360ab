package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText(t *testing.T) {
	t.Parallel()

	t.Run("text parts concatenated", func(t *testing.T) {
		t.Parallel()
		chunk := &ai.ModelResponseChunk{Content: []*ai.Part{
			ai.NewTextPart("Hello"),
			ai.NewTextPart(", world"),
		}}
		assert.Equal(t, "Hello, world", chunkText(chunk))
	})

	t.Run("empty chunk", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, chunkText(&ai.ModelResponseChunk{}))
	})
}

func TestChunkEmitter(t *testing.T) {
	t.Parallel()

	t.Run("forwards lifecycle chunks", func(t *testing.T) {
		t.Parallel()

		ch := make(chan Chunk, 2)
		e := &chunkEmitter{ctx: context.Background(), ch: ch}

		e.toolStart("knowledge_base_search", json.RawMessage(`{"query":"go"}`))
		e.toolEnd("knowledge_base_search")

		start := <-ch
		assert.Equal(t, ChunkToolStart, start.Kind)
		assert.Equal(t, "knowledge_base_search", start.ToolName)
		assert.JSONEq(t, `{"query":"go"}`, string(start.ToolArgs))

		end := <-ch
		assert.Equal(t, ChunkToolEnd, end.Kind)
	})

	t.Run("drops events after cancel instead of blocking", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Unbuffered channel with no reader: only cancellation lets
		// these calls return.
		e := &chunkEmitter{ctx: ctx, ch: make(chan Chunk)}
		e.toolStart("knowledge_base_search", nil)
		e.toolEnd("knowledge_base_search")
	})
}

func TestEmitterContext(t *testing.T) {
	t.Parallel()

	assert.Nil(t, emitterFromContext(context.Background()))

	e := &chunkEmitter{ctx: context.Background(), ch: make(chan Chunk, 1)}
	ctx := withEmitter(context.Background(), e)
	require.Same(t, e, emitterFromContext(ctx))
}
