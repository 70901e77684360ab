package agent

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/lylin/knowbase/internal/log"
)

const searchToolDescription = "Searches the user's personal knowledge base for content relevant to a query. " +
	"Returns numbered text blocks; cite them in the answer as [1], [2], ..."

// chunkEmitter forwards tool lifecycle events from tool handlers into the
// streamer's chunk channel. It travels through the request context so the
// wrapped tool can find it regardless of which goroutine the provider
// runs the handler on.
type chunkEmitter struct {
	ctx context.Context
	ch  chan<- Chunk
}

func (e *chunkEmitter) toolStart(name string, args json.RawMessage) {
	select {
	case e.ch <- Chunk{Kind: ChunkToolStart, ToolName: name, ToolArgs: args}:
	case <-e.ctx.Done():
	}
}

func (e *chunkEmitter) toolEnd(name string) {
	select {
	case e.ch <- Chunk{Kind: ChunkToolEnd, ToolName: name}:
	case <-e.ctx.Done():
	}
}

type emitterKey struct{}

func withEmitter(ctx context.Context, e *chunkEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// emitterFromContext returns nil outside a streaming turn; the tool then
// runs without lifecycle events.
func emitterFromContext(ctx context.Context) *chunkEmitter {
	e, _ := ctx.Value(emitterKey{}).(*chunkEmitter)
	return e
}

// GenkitStreamer implements ModelStreamer over genkit.Generate with the
// retrieval tool registered. Provider chunks and tool lifecycle events
// are funneled through one channel, so the resulting sequence interleaves
// text and tool boundaries in real order.
type GenkitStreamer struct {
	g         *genkit.Genkit
	modelName string
	maxTurns  int
	tools     []ai.ToolRef
	logger    log.Logger
}

// NewGenkitStreamer registers the retrieval tool on g and returns a
// streamer for the given provider-qualified model name.
func NewGenkitStreamer(g *genkit.Genkit, modelName string, maxTurns int, retrieval *Retrieval, logger log.Logger) *GenkitStreamer {
	if maxTurns < 1 {
		maxTurns = 5
	}

	tool := genkit.DefineTool(g, SearchToolName, searchToolDescription,
		func(tctx *ai.ToolContext, input SearchInput) (string, error) {
			emitter := emitterFromContext(tctx.Context)
			if emitter != nil {
				args, err := json.Marshal(input)
				if err != nil {
					args = []byte("{}")
				}
				emitter.toolStart(SearchToolName, args)
			}

			result := retrieval.Search(tctx.Context, input.Query)

			if emitter != nil {
				emitter.toolEnd(SearchToolName)
			}
			return result, nil
		})

	return &GenkitStreamer{
		g:         g,
		modelName: modelName,
		maxTurns:  maxTurns,
		tools:     []ai.ToolRef{tool},
		logger:    logger,
	}
}

// Stream runs one generation turn and yields normalized chunks. Breaking
// out of the sequence cancels the underlying generation.
func (s *GenkitStreamer) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		genCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch := make(chan Chunk, 16)
		errCh := make(chan error, 1)

		genCtx = withEmitter(genCtx, &chunkEmitter{ctx: genCtx, ch: ch})

		go func() {
			defer close(ch)
			_, err := genkit.Generate(genCtx, s.g,
				ai.WithModelName(s.modelName),
				ai.WithSystem(req.System),
				ai.WithMessages(req.Messages...),
				ai.WithTools(s.tools...),
				ai.WithMaxTurns(s.maxTurns),
				ai.WithStreaming(func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
					text := chunkText(chunk)
					if text == "" {
						return nil
					}
					select {
					case ch <- Chunk{Kind: ChunkText, Text: text}:
						return nil
					case <-cbCtx.Done():
						return cbCtx.Err()
					}
				}),
			)
			errCh <- err
		}()

		stopped := false
		for chunk := range ch {
			if !yield(chunk, nil) {
				stopped = true
				break
			}
		}
		cancel()
		for range ch {
			// Drain so the producer can exit.
		}

		if err := <-errCh; err != nil && !stopped {
			yield(Chunk{}, err)
		}
	}
}

// chunkText decodes a provider response chunk into plain text. Providers
// deliver content either as a single text part or as a list of typed
// parts; text parts are concatenated in order and everything else is
// ignored here (tool activity surfaces via the emitter).
func chunkText(chunk *ai.ModelResponseChunk) string {
	var sb strings.Builder
	for _, part := range chunk.Content {
		if part.Kind == ai.PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
