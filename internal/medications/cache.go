package medications

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"medocs-backend/internal/shared/metrics"
)

// NameCache remembers document names by document ID. Names never change
// after upload, so entries only expire to bound memory.
type NameCache struct {
	lru *expirable.LRU[string, string]
}

func NewNameCache(size int, ttl time.Duration) *NameCache {
	return &NameCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *NameCache) get(documentID string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.lru.Get(documentID)
	metrics.ObserveCacheLookup("document_names", ok)
	return name, ok
}

func (c *NameCache) put(documentID, name string) {
	if c != nil {
		c.lru.Add(documentID, name)
	}
}

func (c *NameCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
