package engine

import (
	"sync"

	"github.com/theawakener0/oxide/internal/template"
)

// History is the ordered list of conversation turns shared across
// generations until explicitly cleared. The Generator appends exactly
// one user and one assistant message per successful generation; failed
// or cancelled runs leave it untouched.
type History struct {
	mu   sync.Mutex
	msgs []template.Message
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(m template.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
}

// Clear removes all turns. A configured system prompt is not stored
// here (it is re-applied on every render), so it survives clears.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}

// Snapshot returns a copy safe to hand to the template renderer.
func (h *History) Snapshot() []template.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]template.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
