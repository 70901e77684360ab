package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lylin/knowbase/internal/agent"
	"github.com/lylin/knowbase/internal/testutil"
)

func TestStreamWriter_Frames(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := NewStreamWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	id := uuid.New()
	require.NoError(t, sw.Init(id))
	require.NoError(t, sw.Token("hello"))
	require.NoError(t, sw.Sources([]agent.Citation{{ID: 1, Source: "a.md", Content: "alpha"}}))
	require.NoError(t, sw.Done("hello", true))

	assert.True(t, rec.Flushed)

	frames := testutil.ParseFrames(t, rec.Body.String())
	require.Equal(t, []string{"init", "token", "sources", "done"}, testutil.FrameTypes(frames))
	assert.Equal(t, id.String(), frames[0].ConversationID)
	assert.Equal(t, "hello", frames[1].Content)
	require.Len(t, frames[2].Sources, 1)
	assert.Equal(t, "a.md", frames[2].Sources[0].Source)
	assert.Equal(t, "hello", frames[3].FullContent)
	assert.True(t, frames[3].HasSources)
}

func TestStreamWriter_ErrorFrame(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := NewStreamWriter(rec)
	require.NoError(t, err)

	require.NoError(t, sw.Error("something went wrong"))

	frames := testutil.ParseFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "something went wrong", frames[0].Message)
}

// Token content with newlines must survive the SSE framing; JSON encoding
// keeps each frame on a single data line.
func TestStreamWriter_MultilineToken(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw, err := NewStreamWriter(rec)
	require.NoError(t, err)

	marker := "\n[[TOOL:1:knowledge_base_search:running:{}]]\n"
	require.NoError(t, sw.Token(marker))

	frames := testutil.ParseFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, marker, frames[0].Content)
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewStreamWriter_RequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := NewStreamWriter(noFlushWriter{httptest.NewRecorder()})
	assert.Error(t, err)
}
