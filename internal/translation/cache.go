package translation

import (
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultCacheSize = 2048
	DefaultCacheTTL  = 24 * time.Hour
)

type cacheKey struct {
	text string
	pair langid.Pair
}

// Cache is a bounded, expiring translation cache. It is owned by whoever
// constructs it and injected into the Service.
type Cache struct {
	lru *expirable.LRU[cacheKey, string]
}

// NewCache creates a cache holding at most size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{lru: expirable.NewLRU[cacheKey, string](size, nil, ttl)}
}

func (c *Cache) Get(text string, pair langid.Pair) (string, bool) {
	return c.lru.Get(cacheKey{text: text, pair: pair})
}

func (c *Cache) Add(text string, pair langid.Pair, translated string) {
	c.lru.Add(cacheKey{text: text, pair: pair}, translated)
}

func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }
