package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/serpent/models"
)

// maxLifetime is how long an entry may live regardless of max_age.
const maxLifetime = time.Hour

type entry struct {
	output    *models.Output
	createdAt time.Time
}

// Cache keeps recent scrape outputs in memory. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a Cache holding at most maxEntries outputs. A background
// goroutine evicts entries older than an hour every 5 minutes until Close.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key identifies a scrape by everything that shapes its output. Map keys are
// serialized in sorted order, so equal requests produce equal keys.
func Key(engine string, keywords []string, numPages int, settings map[string]string, options map[string]any) string {
	data, _ := json.Marshal(struct {
		E string            `json:"e"`
		K []string          `json:"k"`
		P int               `json:"p"`
		S map[string]string `json:"s"`
		O map[string]any    `json:"o"`
	}{engine, keywords, numPages, settings, options})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns a cached output younger than maxAgeMs milliseconds.
// maxAgeMs <= 0 disables the lookup.
func (c *Cache) Get(key string, maxAgeMs int) (*models.Output, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.output, true
}

// Set stores an output. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, out *models.Output) {
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
	c.store[key] = &entry{output: out, createdAt: c.now()}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-maxLifetime)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
