package testutil

import (
	"context"
	"iter"

	"github.com/lylin/knowbase/internal/agent"
)

// Step is one scripted action of a ScriptedStreamer.
type Step struct {
	// Chunk is emitted unless Err is set.
	Chunk agent.Chunk

	// Err terminates the stream with an error.
	Err error

	// Do runs before the chunk is emitted, with the stream context.
	// Tests use it to simulate tool side effects such as recording
	// citations via agent.CaptureFromContext.
	Do func(ctx context.Context)
}

// ScriptedStreamer replays a fixed sequence of chunks as a model stream.
// It records the last request so tests can assert on the built prompt.
type ScriptedStreamer struct {
	Steps []Step

	// LastRequest holds the request of the most recent Stream call.
	LastRequest agent.Request
}

var _ agent.ModelStreamer = (*ScriptedStreamer)(nil)

// Stream replays the scripted steps.
func (s *ScriptedStreamer) Stream(ctx context.Context, req agent.Request) iter.Seq2[agent.Chunk, error] {
	s.LastRequest = req
	return func(yield func(agent.Chunk, error) bool) {
		for _, step := range s.Steps {
			if step.Do != nil {
				step.Do(ctx)
			}
			if step.Err != nil {
				yield(agent.Chunk{}, step.Err)
				return
			}
			if !yield(step.Chunk, nil) {
				return
			}
		}
	}
}

// TextStep builds a text chunk step.
func TextStep(text string) Step {
	return Step{Chunk: agent.Chunk{Kind: agent.ChunkText, Text: text}}
}

// ToolStep builds the start and end steps of one tool invocation whose
// side effect runs between them.
func ToolStep(name, args string, do func(ctx context.Context)) []Step {
	return []Step{
		{
			Chunk: agent.Chunk{Kind: agent.ChunkToolStart, ToolName: name, ToolArgs: []byte(args)},
			Do:    do,
		},
		{Chunk: agent.Chunk{Kind: agent.ChunkToolEnd, ToolName: name}},
	}
}
