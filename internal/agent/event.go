// Package agent implements the retrieval-augmented conversation pipeline:
// the retrieval tool adapter, the conversation context builder, and the
// orchestrator that drives a model stream and normalizes it into typed
// events.
//
// Event ordering per turn: zero or more Token/ToolStart/ToolEnd events,
// then an optional Sources event, then exactly one Done event. Failures
// surface as the error of the iterator and terminate the sequence; no
// events follow an error.
package agent

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the Event union.
type EventKind int

const (
	// EventToken carries a fragment of assistant text.
	EventToken EventKind = iota + 1

	// EventToolStart marks the beginning of a tool invocation.
	EventToolStart

	// EventToolEnd marks the completion of a tool invocation.
	EventToolEnd

	// EventSources carries the citations captured during the turn.
	EventSources

	// EventDone terminates a successful turn.
	EventDone
)

// Citation is one retrieval result referenced by the assistant.
// ID is the 1-based sequence number used in [n] markers; Content is the
// chunk excerpt, truncated to ExcerptMaxLen.
type Citation struct {
	ID      int    `json:"id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Event is the typed union emitted by the orchestrator. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventToken
	Text string

	// EventToolStart / EventToolEnd
	Seq  int
	Name string
	Args json.RawMessage // EventToolStart only

	// EventSources
	Sources []Citation

	// EventDone
	FullText   string
	HasSources bool
}

// Marker renders the inline tool marker for EventToolStart and
// EventToolEnd. These markers are embedded in the assistant transcript
// verbatim and surfaced to clients as literal token content; this is the
// only place the bracket syntax is produced.
func (e Event) Marker() string {
	switch e.Kind {
	case EventToolStart:
		args := string(e.Args)
		if args == "" {
			args = "{}"
		}
		return fmt.Sprintf("\n[[TOOL:%d:%s:running:%s]]\n", e.Seq, e.Name, args)
	case EventToolEnd:
		return fmt.Sprintf("[[TOOL_END:%d:%s]]", e.Seq, e.Name)
	default:
		return ""
	}
}
