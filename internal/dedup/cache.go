// internal/dedup/cache.go
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default bounds used when the config leaves them unset.
const (
	DefaultSize = 100_000
	DefaultTTL  = 2 * time.Hour
)

// Cache remembers event keys for a bounded window. It is bounded both by
// entry count (least recently inserted goes first) and by age.
type Cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, struct{}]
}

// New creates a cache holding at most size keys for at most ttl.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Seen records key and reports whether it had already been recorded within
// the window. The check and insert happen under one lock, so two concurrent
// callers with the same key never both get false.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(key); ok {
		return true
	}
	c.lru.Add(key, struct{}{})
	return false
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// TradeKey is the dedup key for a trade.
func TradeKey(signature string) string {
	return "trade:" + signature
}

// TokenKey is the dedup key for first-seen token suppression.
func TokenKey(mint string) string {
	return "token:" + mint
}
