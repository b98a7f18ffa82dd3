package engine

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/theawakener0/oxide/internal/metrics"
)

// PromptCache memoizes prompt-text encodings. Chat turns re-render the
// whole conversation each time, so the encoder sees the same long
// prefix repeatedly; caching the token ids keeps the render-to-prefill
// path cheap for large histories.
type PromptCache struct {
	cache *ttlcache.Cache[string, []int]
}

// NewPromptCache builds a cache with the given entry lifetime and
// starts its eviction loop.
func NewPromptCache(ttl time.Duration, maxEntries uint64) *PromptCache {
	c := ttlcache.New[string, []int](
		ttlcache.WithTTL[string, []int](ttl),
		ttlcache.WithCapacity[string, []int](maxEntries),
	)
	go c.Start()
	return &PromptCache{cache: c}
}

// Get returns the cached encoding for prompt, or nil on miss.
func (p *PromptCache) Get(prompt string) []int {
	if p == nil {
		return nil
	}
	item := p.cache.Get(prompt)
	if item == nil {
		metrics.PromptCacheMisses.Inc()
		return nil
	}
	metrics.PromptCacheHits.Inc()
	return item.Value()
}

// Put stores an encoding under its prompt text. The slice is copied so
// later mutation by the generator cannot poison the cache.
func (p *PromptCache) Put(prompt string, tokens []int) {
	if p == nil {
		return
	}
	cp := make([]int, len(tokens))
	copy(cp, tokens)
	p.cache.Set(prompt, cp, ttlcache.DefaultTTL)
}

// Stop halts the eviction loop.
func (p *PromptCache) Stop() {
	if p != nil {
		p.cache.Stop()
	}
}
