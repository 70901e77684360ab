package testutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// FrameSource is one citation as it appears on the wire.
type FrameSource struct {
	ID      int    `json:"id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Frame is one decoded wire frame. Only the fields for its Type are set.
type Frame struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	Sources        []FrameSource `json:"sources"`
	FullContent    string        `json:"full_content"`
	HasSources     bool          `json:"has_sources"`
	Message        string        `json:"message"`
}

// ParseFrames decodes a server-sent event body of data-only frames.
func ParseFrames(t *testing.T, body string) []Frame {
	t.Helper()

	var frames []Frame
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected SSE line: %q", line)

		var f Frame
		require.NoError(t, json.Unmarshal([]byte(payload), &f), "frame: %q", payload)
		frames = append(frames, f)
	}
	return frames
}

// FrameTypes returns just the type sequence of the given frames.
func FrameTypes(frames []Frame) []string {
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	return types
}
