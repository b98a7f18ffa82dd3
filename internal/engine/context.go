package engine

import "github.com/theawakener0/oxide/internal/metrics"

// ContextTracker counts tokens committed to the model's context
// against the immutable limit read from model metadata. When the next
// decode step would exceed the limit, generation soft-stops: the run
// ends with Done, not an error.
type ContextTracker struct {
	used  int
	limit int
}

func NewContextTracker(limit int) *ContextTracker {
	return &ContextTracker{limit: limit}
}

func (c *ContextTracker) Record(n int) {
	c.used += n
	metrics.ContextUsedTokens.Set(float64(c.used))
}

func (c *ContextTracker) Used() int  { return c.used }
func (c *ContextTracker) Limit() int { return c.limit }

// WouldOverflow reports whether committing n more tokens would exceed
// the limit.
func (c *ContextTracker) WouldOverflow(n int) bool {
	return c.limit > 0 && c.used+n > c.limit
}

// Percentage returns context usage in [0, 100].
func (c *ContextTracker) Percentage() float64 {
	if c.limit <= 0 {
		return 0
	}
	p := float64(c.used) / float64(c.limit) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (c *ContextTracker) Reset() {
	c.used = 0
	metrics.ContextUsedTokens.Set(0)
}
