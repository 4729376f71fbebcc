package embedding

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingCache is an LRU cache for text embeddings keyed by the query text.
// A cache created with capacity <= 0 stores nothing.
type EmbeddingCache struct {
	lru *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		return &EmbeddingCache{}
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		return &EmbeddingCache{}
	}
	return &EmbeddingCache{lru: c}
}

// Get returns a copy of the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	if c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set stores a copy of the embedding for key, evicting the least recently used entry if full.
func (c *EmbeddingCache) Set(key string, value []float32) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, slices.Clone(value))
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
