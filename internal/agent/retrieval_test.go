package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

type stubSearcher struct {
	results []knowledge.Result
	err     error

	gotQuery string
	gotTopK  int
}

func (s *stubSearcher) Search(_ context.Context, query string, topK int) ([]knowledge.Result, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return s.results, s.err
}

func TestRetrieval_Search(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{results: []knowledge.Result{
		{Content: "Go was designed at Google.", SourceFile: "go.md"},
		{Content: "Goroutines are lightweight.", SourceFile: "concurrency.md"},
		{Content: "Channels carry values.", SourceFile: "concurrency.md"},
	}}
	r := NewRetrieval(searcher, 3, log.NewNop())

	capture := NewCapture()
	ctx := WithCapture(context.Background(), capture)

	out := r.Search(ctx, "what is Go")

	assert.Equal(t, "what is Go", searcher.gotQuery)
	assert.Equal(t, 3, searcher.gotTopK)

	// Numbered blocks matching the captured citation ids.
	assert.Contains(t, out, "[1] Source file: go.md\nContent: Go was designed at Google.")
	assert.Contains(t, out, "[2] Source file: concurrency.md")
	assert.Contains(t, out, "[3] Source file: concurrency.md")
	assert.Contains(t, out, "\n\n---\n\n")

	citations := capture.Citations()
	require.Len(t, citations, 3)
	assert.Equal(t, 1, citations[0].ID)
	assert.Equal(t, "go.md", citations[0].Source)
	assert.Equal(t, "Go was designed at Google.", citations[0].Content)
}

// A second search in the same turn continues the numbering of the first.
func TestRetrieval_SearchNumberingAccumulates(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{results: []knowledge.Result{
		{Content: "alpha", SourceFile: "a.md"},
		{Content: "beta", SourceFile: "b.md"},
	}}
	r := NewRetrieval(searcher, 3, log.NewNop())

	capture := NewCapture()
	ctx := WithCapture(context.Background(), capture)

	r.Search(ctx, "first")
	out := r.Search(ctx, "second")

	assert.Contains(t, out, "[3] Source file: a.md")
	assert.Contains(t, out, "[4] Source file: b.md")
	assert.Len(t, capture.Citations(), 4)
}

func TestRetrieval_SearchNoResults(t *testing.T) {
	t.Parallel()

	r := NewRetrieval(&stubSearcher{}, 3, log.NewNop())
	out := r.Search(context.Background(), "nothing matches")

	assert.Equal(t, "No relevant information was found in the knowledge base.", out)
}

// Search failures surface to the model as text, never as an error.
func TestRetrieval_SearchErrorAbsorbed(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{err: errors.New("connection refused")}
	r := NewRetrieval(searcher, 3, log.NewNop())

	capture := NewCapture()
	out := r.Search(WithCapture(context.Background(), capture), "query")

	assert.Contains(t, out, "An error occurred while searching the knowledge base:")
	assert.Contains(t, out, "connection refused")
	assert.Empty(t, capture.Citations())
}

func TestRetrieval_SearchWithoutCapture(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{results: []knowledge.Result{
		{Content: "alpha", SourceFile: "a.md"},
	}}
	r := NewRetrieval(searcher, 3, log.NewNop())

	out := r.Search(context.Background(), "query")
	assert.Contains(t, out, "[1] Source file: a.md")
}

func TestRetrieval_ExcerptTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("語", ExcerptMaxLen+100)
	searcher := &stubSearcher{results: []knowledge.Result{
		{Content: long, SourceFile: "long.md"},
	}}
	r := NewRetrieval(searcher, 3, log.NewNop())

	capture := NewCapture()
	out := r.Search(WithCapture(context.Background(), capture), "query")

	citations := capture.Citations()
	require.Len(t, citations, 1)
	assert.Equal(t, strings.Repeat("語", ExcerptMaxLen)+"...", citations[0].Content)

	// The tool result keeps the full chunk; only the citation is cut.
	assert.Contains(t, out, long)
}

func TestNewRetrieval_TopKFallback(t *testing.T) {
	t.Parallel()

	searcher := &stubSearcher{}
	r := NewRetrieval(searcher, 0, log.NewNop())
	r.Search(context.Background(), "q")

	assert.Equal(t, 3, searcher.gotTopK)
}
