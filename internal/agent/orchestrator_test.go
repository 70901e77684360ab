package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lylin/knowbase/internal/agent"
	"github.com/lylin/knowbase/internal/conversation"
	"github.com/lylin/knowbase/internal/log"
	"github.com/lylin/knowbase/internal/testutil"
)

type fixedMessages struct {
	messages []conversation.Message
	err      error
}

func (f *fixedMessages) Recent(context.Context, uuid.UUID, int) ([]conversation.Message, error) {
	return f.messages, f.err
}

func newOrchestrator(streamer *testutil.ScriptedStreamer) *agent.Orchestrator {
	contexts := agent.NewContextBuilder(&fixedMessages{}, 10)
	return agent.NewOrchestrator(streamer, contexts, log.NewNop())
}

func collect(t *testing.T, o *agent.Orchestrator, query string) ([]agent.Event, error) {
	t.Helper()
	var events []agent.Event
	for ev, err := range o.Run(context.Background(), uuid.New(), query) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func kinds(events []agent.Event) []agent.EventKind {
	out := make([]agent.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestOrchestrator_PlainTextTurn(t *testing.T) {
	t.Parallel()

	streamer := &testutil.ScriptedStreamer{Steps: []testutil.Step{
		testutil.TextStep("Hello"),
		testutil.TextStep(", world"),
	}}
	o := newOrchestrator(streamer)

	events, err := collect(t, o, "greet me")
	require.NoError(t, err)

	require.Equal(t, []agent.EventKind{agent.EventToken, agent.EventToken, agent.EventDone}, kinds(events))
	done := events[2]
	assert.Equal(t, "Hello, world", done.FullText)
	assert.False(t, done.HasSources)

	assert.Equal(t, agent.SystemPrompt, streamer.LastRequest.System)
	require.NotEmpty(t, streamer.LastRequest.Messages)
}

func TestOrchestrator_ToolTurn(t *testing.T) {
	t.Parallel()

	steps := []testutil.Step{testutil.TextStep("Let me check.")}
	steps = append(steps, testutil.ToolStep("knowledge_base_search", `{"query":"go"}`, func(ctx context.Context) {
		agent.CaptureFromContext(ctx).Add("go.md", "Go is a language.")
	})...)
	steps = append(steps, testutil.TextStep("Go is a language [1]."))

	streamer := &testutil.ScriptedStreamer{Steps: steps}
	o := newOrchestrator(streamer)

	events, err := collect(t, o, "what is go")
	require.NoError(t, err)

	require.Equal(t, []agent.EventKind{
		agent.EventToken,
		agent.EventToolStart,
		agent.EventToolEnd,
		agent.EventToken,
		agent.EventSources,
		agent.EventDone,
	}, kinds(events))

	start, end := events[1], events[2]
	assert.Equal(t, 1, start.Seq)
	assert.Equal(t, "knowledge_base_search", start.Name)
	assert.Equal(t, 1, end.Seq)

	sources := events[4]
	require.Len(t, sources.Sources, 1)
	assert.Equal(t, agent.Citation{ID: 1, Source: "go.md", Content: "Go is a language."}, sources.Sources[0])

	// The transcript embeds both markers at their emission points.
	done := events[5]
	assert.Equal(t,
		"Let me check."+
			"\n[[TOOL:1:knowledge_base_search:running:{\"query\":\"go\"}]]\n"+
			"[[TOOL_END:1:knowledge_base_search]]"+
			"Go is a language [1].",
		done.FullText)
	assert.True(t, done.HasSources)
}

// Two tool invocations in one turn get distinct sequence numbers and the
// citation numbering continues across them.
func TestOrchestrator_MultipleToolCalls(t *testing.T) {
	t.Parallel()

	var steps []testutil.Step
	steps = append(steps, testutil.ToolStep("knowledge_base_search", `{"query":"a"}`, func(ctx context.Context) {
		agent.CaptureFromContext(ctx).Add("a.md", "alpha")
		agent.CaptureFromContext(ctx).Add("b.md", "beta")
	})...)
	steps = append(steps, testutil.ToolStep("knowledge_base_search", `{"query":"c"}`, func(ctx context.Context) {
		agent.CaptureFromContext(ctx).Add("c.md", "gamma")
	})...)
	steps = append(steps, testutil.TextStep("Answer [1][2][3]."))

	streamer := &testutil.ScriptedStreamer{Steps: steps}
	o := newOrchestrator(streamer)

	events, err := collect(t, o, "query")
	require.NoError(t, err)

	var starts []agent.Event
	var sources []agent.Citation
	for _, ev := range events {
		switch ev.Kind {
		case agent.EventToolStart:
			starts = append(starts, ev)
		case agent.EventSources:
			sources = ev.Sources
		}
	}

	require.Len(t, starts, 2)
	assert.Equal(t, 1, starts[0].Seq)
	assert.Equal(t, 2, starts[1].Seq)

	require.Len(t, sources, 3)
	assert.Equal(t, 3, sources[2].ID)
	assert.Equal(t, "c.md", sources[2].Source)
}

func TestOrchestrator_EmptyTextChunksSkipped(t *testing.T) {
	t.Parallel()

	streamer := &testutil.ScriptedStreamer{Steps: []testutil.Step{
		testutil.TextStep(""),
		testutil.TextStep("content"),
		testutil.TextStep(""),
	}}
	o := newOrchestrator(streamer)

	events, err := collect(t, o, "query")
	require.NoError(t, err)
	require.Equal(t, []agent.EventKind{agent.EventToken, agent.EventDone}, kinds(events))
	assert.Equal(t, "content", events[1].FullText)
}

// A stream error terminates the sequence: no Sources, no Done.
func TestOrchestrator_StreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("model unavailable")
	streamer := &testutil.ScriptedStreamer{Steps: []testutil.Step{
		testutil.TextStep("partial"),
		{Err: boom},
	}}
	o := newOrchestrator(streamer)

	events, err := collect(t, o, "query")
	require.ErrorIs(t, err, boom)
	require.Equal(t, []agent.EventKind{agent.EventToken}, kinds(events))
}

func TestOrchestrator_HistoryError(t *testing.T) {
	t.Parallel()

	contexts := agent.NewContextBuilder(&fixedMessages{err: errors.New("db down")}, 10)
	o := agent.NewOrchestrator(&testutil.ScriptedStreamer{}, contexts, log.NewNop())

	var events []agent.Event
	var gotErr error
	for ev, err := range o.Run(context.Background(), uuid.New(), "query") {
		if err != nil {
			gotErr = err
			break
		}
		events = append(events, ev)
	}
	require.Error(t, gotErr)
	assert.Empty(t, events)
}

// Separate turns never share citation state.
func TestOrchestrator_FreshCapturePerTurn(t *testing.T) {
	t.Parallel()

	makeSteps := func(source string) []testutil.Step {
		steps := testutil.ToolStep("knowledge_base_search", `{}`, func(ctx context.Context) {
			agent.CaptureFromContext(ctx).Add(source, "content")
		})
		return append(steps, testutil.TextStep("done"))
	}

	o := newOrchestrator(&testutil.ScriptedStreamer{Steps: makeSteps("first.md")})
	events, err := collect(t, o, "q1")
	require.NoError(t, err)

	o2 := newOrchestrator(&testutil.ScriptedStreamer{Steps: makeSteps("second.md")})
	events2, err := collect(t, o2, "q2")
	require.NoError(t, err)

	firstSources := events[len(events)-2]
	secondSources := events2[len(events2)-2]
	require.Equal(t, agent.EventSources, firstSources.Kind)
	require.Equal(t, agent.EventSources, secondSources.Kind)
	require.Len(t, secondSources.Sources, 1)
	assert.Equal(t, 1, secondSources.Sources[0].ID)
	assert.Equal(t, "second.md", secondSources.Sources[0].Source)
}

// A retrieving turn running concurrently with a plain turn must not
// leak its citations into the other turn's events. Both streams are
// held at a rendezvous so they are in flight at the same time when the
// citation is recorded.
func TestOrchestrator_ConcurrentTurnsIsolateCitations(t *testing.T) {
	t.Parallel()

	var gate sync.WaitGroup
	gate.Add(2)
	rendezvous := func(context.Context) {
		gate.Done()
		gate.Wait()
	}

	retrievingSteps := testutil.ToolStep("knowledge_base_search", `{}`, func(ctx context.Context) {
		rendezvous(ctx)
		agent.CaptureFromContext(ctx).Add("only.md", "content")
	})
	retrievingSteps = append(retrievingSteps, testutil.TextStep("answer [1]"))
	retrieving := newOrchestrator(&testutil.ScriptedStreamer{Steps: retrievingSteps})

	plain := newOrchestrator(&testutil.ScriptedStreamer{Steps: []testutil.Step{
		{Chunk: agent.Chunk{Kind: agent.ChunkText, Text: "plain answer"}, Do: rendezvous},
	}})

	var (
		wg                     sync.WaitGroup
		retEvents, plainEvents []agent.Event
		retErr, plainErr       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		retEvents, retErr = collect(t, retrieving, "what do the docs say")
	}()
	go func() {
		defer wg.Done()
		plainEvents, plainErr = collect(t, plain, "just chat")
	}()
	wg.Wait()

	require.NoError(t, retErr)
	require.NoError(t, plainErr)

	// The plain turn sees no sources at all.
	require.Equal(t, []agent.EventKind{agent.EventToken, agent.EventDone}, kinds(plainEvents))
	assert.False(t, plainEvents[1].HasSources)

	// The retrieving turn's sources hold exactly its own citation.
	var sources []agent.Citation
	for _, ev := range retEvents {
		if ev.Kind == agent.EventSources {
			sources = ev.Sources
		}
	}
	require.Len(t, sources, 1)
	assert.Equal(t, agent.Citation{ID: 1, Source: "only.md", Content: "content"}, sources[0])
	assert.True(t, retEvents[len(retEvents)-1].HasSources)
}

func TestOrchestrator_EarlyConsumerStop(t *testing.T) {
	t.Parallel()

	streamer := &testutil.ScriptedStreamer{Steps: []testutil.Step{
		testutil.TextStep("one"),
		testutil.TextStep("two"),
		testutil.TextStep("three"),
	}}
	o := newOrchestrator(streamer)

	var count int
	for _, err := range o.Run(context.Background(), uuid.New(), "query") {
		require.NoError(t, err)
		count++
		if count == 1 {
			break
		}
	}
	assert.Equal(t, 1, count)
}
