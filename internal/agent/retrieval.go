package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lylin/knowbase/internal/knowledge"
	"github.com/lylin/knowbase/internal/log"
)

// SearchToolName is the tool name surfaced to the model and embedded in
// tool markers.
const SearchToolName = "knowledge_base_search"

// ExcerptMaxLen is the maximum citation excerpt length in characters.
const ExcerptMaxLen = 500

// notFoundResult is returned to the model when a search matches nothing.
const notFoundResult = "No relevant information was found in the knowledge base."

const blockSeparator = "\n\n---\n\n"

// Searcher is the slice of the knowledge store the retrieval tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Result, error)
}

// SearchInput is the retrieval tool's input schema.
type SearchInput struct {
	Query string `json:"query" jsonschema_description:"The search query to run against the knowledge base"`
}

// Retrieval adapts the knowledge store into an LLM tool. Results are
// formatted as numbered text blocks; the numbers match the citations
// recorded in the turn's Capture, so the model can reference them as
// [1], [2], ... in its answer.
type Retrieval struct {
	searcher Searcher
	topK     int
	logger   log.Logger
}

// NewRetrieval creates the retrieval tool adapter. topK values below 1
// fall back to 3.
func NewRetrieval(searcher Searcher, topK int, logger log.Logger) *Retrieval {
	if topK < 1 {
		topK = 3
	}
	return &Retrieval{searcher: searcher, topK: topK, logger: logger}
}

// Search runs a knowledge-base search and formats the outcome as a
// textual tool result. Failures never propagate as errors: the model
// receives a textual description instead, so a broken index degrades the
// answer rather than the turn.
func (r *Retrieval) Search(ctx context.Context, query string) string {
	results, err := r.searcher.Search(ctx, query, r.topK)
	if err != nil {
		r.logger.Warn("knowledge base search failed", "error", err)
		return fmt.Sprintf("An error occurred while searching the knowledge base: %v", err)
	}
	if len(results) == 0 {
		return notFoundResult
	}

	capture := CaptureFromContext(ctx)

	blocks := make([]string, 0, len(results))
	for i, res := range results {
		id := i + 1
		if capture != nil {
			id = capture.Add(res.SourceFile, truncateExcerpt(res.Content))
		}
		blocks = append(blocks, fmt.Sprintf("[%d] Source file: %s\nContent: %s", id, res.SourceFile, res.Content))
	}
	return strings.Join(blocks, blockSeparator)
}

// truncateExcerpt caps citation excerpts at ExcerptMaxLen characters,
// appending an ellipsis when cut.
func truncateExcerpt(content string) string {
	if utf8.RuneCountInString(content) <= ExcerptMaxLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:ExcerptMaxLen]) + "..."
}
