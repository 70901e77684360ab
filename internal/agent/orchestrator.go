package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/lylin/knowbase/internal/log"
)

// Orchestrator drives one conversation turn: it builds the prompt, runs
// the model stream with a fresh citation capture, and normalizes the
// provider chunks into the Event union.
//
// Guarantees per Run:
//   - the transcript buffer (Done.FullText) contains every token and
//     every tool marker in emission order
//   - tool invocations get per-turn sequence numbers starting at 1
//   - Sources is emitted at most once, only when citations were captured
//   - exactly one of Done or a terminal error ends the sequence, and
//     nothing follows either
type Orchestrator struct {
	model    ModelStreamer
	contexts *ContextBuilder
	logger   log.Logger
}

// NewOrchestrator creates an orchestrator over the given model stream
// and context builder.
func NewOrchestrator(model ModelStreamer, contexts *ContextBuilder, logger log.Logger) *Orchestrator {
	return &Orchestrator{model: model, contexts: contexts, logger: logger}
}

type toolInvocation struct {
	seq  int
	name string
}

// Run executes one turn for the given conversation and user query.
func (o *Orchestrator) Run(ctx context.Context, conversationID uuid.UUID, query string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		msgs, err := o.contexts.Build(ctx, conversationID, query)
		if err != nil {
			yield(Event{}, err)
			return
		}

		// Fresh capture per turn; carried via context into tool handlers.
		capture := NewCapture()
		ctx := WithCapture(ctx, capture)

		req := Request{System: SystemPrompt, Messages: msgs}

		var full strings.Builder
		var open []toolInvocation
		seq := 0

		for chunk, err := range o.model.Stream(ctx, req) {
			if err != nil {
				o.logger.Error("model stream failed", "conversation_id", conversationID, "error", err)
				yield(Event{}, err)
				return
			}

			switch chunk.Kind {
			case ChunkText:
				if chunk.Text == "" {
					continue
				}
				full.WriteString(chunk.Text)
				if !yield(Event{Kind: EventToken, Text: chunk.Text}, nil) {
					return
				}

			case ChunkToolStart:
				seq++
				open = append(open, toolInvocation{seq: seq, name: chunk.ToolName})
				ev := Event{Kind: EventToolStart, Seq: seq, Name: chunk.ToolName, Args: chunk.ToolArgs}
				full.WriteString(ev.Marker())
				if !yield(ev, nil) {
					return
				}

			case ChunkToolEnd:
				inv := toolInvocation{seq: seq, name: chunk.ToolName}
				if n := len(open); n > 0 {
					inv = open[n-1]
					open = open[:n-1]
				}
				ev := Event{Kind: EventToolEnd, Seq: inv.seq, Name: inv.name}
				full.WriteString(ev.Marker())
				if !yield(ev, nil) {
					return
				}
			}
		}

		citations := capture.Citations()
		if len(citations) > 0 {
			if !yield(Event{Kind: EventSources, Sources: citations}, nil) {
				return
			}
		}

		yield(Event{Kind: EventDone, FullText: full.String(), HasSources: len(citations) > 0}, nil)
	}
}
