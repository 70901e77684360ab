package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Marker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name: "tool start with args",
			event: Event{
				Kind: EventToolStart,
				Seq:  1,
				Name: "knowledge_base_search",
				Args: json.RawMessage(`{"query":"go routines"}`),
			},
			want: "\n[[TOOL:1:knowledge_base_search:running:{\"query\":\"go routines\"}]]\n",
		},
		{
			name:  "tool start without args",
			event: Event{Kind: EventToolStart, Seq: 2, Name: "knowledge_base_search"},
			want:  "\n[[TOOL:2:knowledge_base_search:running:{}]]\n",
		},
		{
			name:  "tool end",
			event: Event{Kind: EventToolEnd, Seq: 1, Name: "knowledge_base_search"},
			want:  "[[TOOL_END:1:knowledge_base_search]]",
		},
		{
			name:  "token has no marker",
			event: Event{Kind: EventToken, Text: "hello"},
			want:  "",
		},
		{
			name:  "done has no marker",
			event: Event{Kind: EventDone, FullText: "hello"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.event.Marker())
		})
	}
}

func TestCitation_JSONShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Citation{ID: 1, Source: "go.md", Content: "excerpt"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"source":"go.md","content":"excerpt"}`, string(data))
}
