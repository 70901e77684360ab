package agent

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/firebase/genkit/go/ai"
)

// ChunkKind discriminates the provider chunk union.
type ChunkKind int

const (
	// ChunkText is a fragment of generated text.
	ChunkText ChunkKind = iota + 1

	// ChunkToolStart signals that a tool invocation began.
	ChunkToolStart

	// ChunkToolEnd signals that a tool invocation finished.
	ChunkToolEnd
)

// Chunk is the normalized unit produced at the provider boundary.
// Provider-specific content shapes are decoded exactly once, here; the
// orchestrator only ever sees this union.
type Chunk struct {
	Kind ChunkKind

	// ChunkText
	Text string

	// ChunkToolStart / ChunkToolEnd
	ToolName string
	ToolArgs json.RawMessage // ChunkToolStart only
}

// Request is a fully-built model request for one turn.
type Request struct {
	System   string
	Messages []*ai.Message
}

// ModelStreamer streams a model turn as normalized chunks. The sequence
// ends when generation completes; a non-nil error terminates it.
type ModelStreamer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}
