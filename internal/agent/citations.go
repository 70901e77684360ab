package agent

import (
	"context"
	"sync"
)

// Capture collects the citations produced by retrieval tool calls during
// a single turn. Each turn gets a fresh Capture carried through the
// request context, so concurrent conversations never share citation
// state. Sequence numbers are 1-based and keep counting across multiple
// tool calls within the turn.
//
// Thread-safe: tool handlers may run on provider-managed goroutines.
type Capture struct {
	mu        sync.Mutex
	citations []Citation
}

// NewCapture creates an empty per-turn citation buffer.
func NewCapture() *Capture {
	return &Capture{}
}

// Add records a citation and returns its assigned sequence number.
func (c *Capture) Add(source, content string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := len(c.citations) + 1
	c.citations = append(c.citations, Citation{ID: id, Source: source, Content: content})
	return id
}

// Citations returns a copy of the captured citations in sequence order.
func (c *Capture) Citations() []Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Citation, len(c.citations))
	copy(out, c.citations)
	return out
}

type captureKey struct{}

// WithCapture attaches a per-turn citation buffer to the context.
func WithCapture(ctx context.Context, c *Capture) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}

// CaptureFromContext retrieves the turn's citation buffer, or nil when the
// tool runs outside a streaming turn.
func CaptureFromContext(ctx context.Context) *Capture {
	c, _ := ctx.Value(captureKey{}).(*Capture)
	return c
}
