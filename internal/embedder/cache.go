package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheSize bounds the embedding cache entry count.
	DefaultCacheSize = 1000

	// queryFillLimit is the fill fraction past which query-task vectors
	// are no longer admitted, so low-reuse query traffic cannot displace
	// document entries.
	queryFillLimit = 0.9
)

// Cache is a bounded LRU of generated vectors keyed by task and text.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, []float32]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// NewCache creates a cache bounded to size entries with LRU eviction.
// A non-positive size selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{capacity: size}
	onEvict := func(string, []float32) {
		c.evictions++
	}
	entries, err := lru.NewWithEvict(size, onEvict)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		entries, _ = lru.NewWithEvict(DefaultCacheSize, onEvict)
		c.capacity = DefaultCacheSize
	}
	c.entries = entries
	return c
}

// CacheKey derives the key for a text embedded under a task. The task
// participates in the hash, so the same text embedded for different
// tasks cannot collide.
func CacheKey(task Task, text string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a copy of the cached vector, promoting the entry to
// most-recently-used. Returns a copy to prevent caller mutations from
// affecting cached values.
func (c *Cache) Get(task Task, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vec, ok := c.entries.Get(CacheKey(task, text))
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Put stores a vector. Query-task vectors are only admitted while the
// cache is at most 90% full; document vectors always win an LRU slot.
func (c *Cache) Put(task Task, text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if task == TaskQuery && float64(c.entries.Len()) > queryFillLimit*float64(c.capacity) {
		return
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.entries.Add(CacheKey(task, text), stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear empties the cache and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Stats reports hit, miss, and eviction counts since the last Clear.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      c.entries.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
