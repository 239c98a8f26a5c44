// Package cache keeps recent rank responses so repeated checks of the same
// keyword do not hit the storefront again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/serprank/models"
)

type entry struct {
	response  *models.RankResponse
	createdAt time.Time
}

// Cache is an in-memory store of rank responses bounded by entry count.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	done       chan struct{}
	once       sync.Once
}

// New creates a Cache holding at most maxEntries responses. Entries older
// than one hour are swept every five minutes.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        time.Hour,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key identifies a rank check. ASIN order does not matter.
func Key(keyword string, asins []string, pages int, earlyStop bool) string {
	sorted := slices.Clone(asins)
	slices.Sort(sorted)

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(keyword)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(pages)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(earlyStop)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the response stored under key if it is younger than maxAge.
// A non-positive maxAge always misses.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.RankResponse, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}
	return e.response, true
}

// Set stores resp under key, evicting the oldest entry when full.
func (c *Cache) Set(key string, resp *models.RankResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{response: resp, createdAt: c.now()}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the background sweep.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
