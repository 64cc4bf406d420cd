package embedder

import (
	"fmt"
	"sync"
	"testing"
)

func TestCacheKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		k1 := CacheKey(TaskDocument, "hello world")
		k2 := CacheKey(TaskDocument, "hello world")
		if k1 != k2 {
			t.Errorf("CacheKey() not consistent: %v != %v", k1, k2)
		}
	})

	t.Run("hex encoded sha256", func(t *testing.T) {
		k := CacheKey(TaskDocument, "text")
		if len(k) != 64 {
			t.Errorf("Key length = %d, want 64", len(k))
		}
		for _, c := range k {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Errorf("Key %q contains non-hex rune %q", k, c)
				break
			}
		}
	})

	t.Run("task separates keys", func(t *testing.T) {
		doc := CacheKey(TaskDocument, "same text")
		query := CacheKey(TaskQuery, "same text")
		if doc == query {
			t.Error("Document and query keys collided for identical text")
		}
	})

	t.Run("text separates keys", func(t *testing.T) {
		a := CacheKey(TaskDocument, "text a")
		b := CacheKey(TaskDocument, "text b")
		if a == b {
			t.Error("Different texts produced the same key")
		}
	})
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		if _, ok := cache.Get(TaskDocument, "nonexistent"); ok {
			t.Error("Expected cache miss on empty cache")
		}

		cache.Put(TaskDocument, "text1", []float32{1.0, 2.0, 3.0})

		got, ok := cache.Get(TaskDocument, "text1")
		if !ok {
			t.Fatal("Expected cache hit")
		}
		if len(got) != 3 || got[0] != 1.0 {
			t.Errorf("Got vector %v, want [1 2 3]", got)
		}

		if cache.Size() != 1 {
			t.Errorf("Cache size = %d, want 1", cache.Size())
		}
	})

	t.Run("task separation", func(t *testing.T) {
		cache := NewCache(10)
		cache.Put(TaskDocument, "shared", []float32{1.0})

		if _, ok := cache.Get(TaskQuery, "shared"); ok {
			t.Error("Query lookup hit a document entry")
		}
		if _, ok := cache.Get(TaskDocument, "shared"); !ok {
			t.Error("Document lookup missed its own entry")
		}
	})

	t.Run("defensive copy out", func(t *testing.T) {
		cache := NewCache(10)
		cache.Put(TaskDocument, "text", []float32{1.0, 2.0})

		got, _ := cache.Get(TaskDocument, "text")
		got[0] = 999

		again, _ := cache.Get(TaskDocument, "text")
		if again[0] != 1.0 {
			t.Errorf("Caller mutation leaked into cache: got %v", again[0])
		}
	})

	t.Run("defensive copy in", func(t *testing.T) {
		cache := NewCache(10)
		vec := []float32{1.0, 2.0}
		cache.Put(TaskDocument, "text", vec)
		vec[0] = 999

		got, _ := cache.Get(TaskDocument, "text")
		if got[0] != 1.0 {
			t.Errorf("Caller mutation leaked into cache: got %v", got[0])
		}
	})

	t.Run("lru eviction respects access order", func(t *testing.T) {
		cache := NewCache(3)
		cache.Put(TaskDocument, "a", []float32{1})
		cache.Put(TaskDocument, "b", []float32{2})
		cache.Put(TaskDocument, "c", []float32{3})

		// Touch a so b becomes least recently used.
		cache.Get(TaskDocument, "a")

		cache.Put(TaskDocument, "d", []float32{4})

		if _, ok := cache.Get(TaskDocument, "b"); ok {
			t.Error("Expected b to be evicted")
		}
		for _, text := range []string{"a", "c", "d"} {
			if _, ok := cache.Get(TaskDocument, text); !ok {
				t.Errorf("Expected %s to survive eviction", text)
			}
		}
	})

	t.Run("entry past capacity evicts exactly one", func(t *testing.T) {
		cache := NewCache(0) // default capacity
		for i := 0; i < DefaultCacheSize; i++ {
			cache.Put(TaskDocument, fmt.Sprintf("mem-%d", i), []float32{float32(i)})
		}
		if cache.Size() != DefaultCacheSize {
			t.Fatalf("Cache size = %d, want %d", cache.Size(), DefaultCacheSize)
		}

		cache.Put(TaskDocument, fmt.Sprintf("mem-%d", DefaultCacheSize), []float32{1})

		if cache.Size() != DefaultCacheSize {
			t.Errorf("Cache size = %d, want %d", cache.Size(), DefaultCacheSize)
		}
		if got := cache.Stats().Evictions; got != 1 {
			t.Errorf("Evictions = %d, want 1", got)
		}
		if _, ok := cache.Get(TaskDocument, "mem-0"); ok {
			t.Error("Expected oldest entry mem-0 to be evicted")
		}
		if _, ok := cache.Get(TaskDocument, "mem-1"); !ok {
			t.Error("Expected mem-1 to survive")
		}
	})

	t.Run("query entries rejected near capacity", func(t *testing.T) {
		cache := NewCache(10)
		for i := 0; i < 9; i++ {
			cache.Put(TaskDocument, fmt.Sprintf("doc-%d", i), []float32{float32(i)})
		}

		// At 90% full a query entry still fits.
		cache.Put(TaskQuery, "query-1", []float32{1})
		if _, ok := cache.Get(TaskQuery, "query-1"); !ok {
			t.Error("Query entry rejected at exactly the fill limit")
		}

		// Past the limit queries are dropped without evicting.
		cache.Put(TaskQuery, "query-2", []float32{2})
		if _, ok := cache.Get(TaskQuery, "query-2"); ok {
			t.Error("Query entry admitted past the fill limit")
		}
		if got := cache.Stats().Evictions; got != 0 {
			t.Errorf("Evictions = %d, want 0", got)
		}

		// Document entries are never turned away.
		cache.Put(TaskDocument, "doc-9", []float32{9})
		if _, ok := cache.Get(TaskDocument, "doc-9"); !ok {
			t.Error("Document entry rejected at capacity")
		}
	})

	t.Run("stats", func(t *testing.T) {
		cache := NewCache(5)
		cache.Put(TaskDocument, "a", []float32{1})

		cache.Get(TaskDocument, "a")
		cache.Get(TaskDocument, "a")
		cache.Get(TaskDocument, "missing")

		stats := cache.Stats()
		if stats.Hits != 2 {
			t.Errorf("Hits = %d, want 2", stats.Hits)
		}
		if stats.Misses != 1 {
			t.Errorf("Misses = %d, want 1", stats.Misses)
		}
		if stats.Size != 1 || stats.Capacity != 5 {
			t.Errorf("Size/Capacity = %d/%d, want 1/5", stats.Size, stats.Capacity)
		}
	})

	t.Run("clear resets counters", func(t *testing.T) {
		cache := NewCache(3)
		cache.Put(TaskDocument, "a", []float32{1})
		cache.Put(TaskDocument, "b", []float32{2})
		cache.Get(TaskDocument, "a")
		cache.Get(TaskDocument, "missing")

		cache.Clear()

		if cache.Size() != 0 {
			t.Errorf("Cache size after clear = %d, want 0", cache.Size())
		}
		if _, ok := cache.Get(TaskDocument, "a"); ok {
			t.Error("Expected cache miss after clear")
		}

		stats := cache.Stats()
		if stats.Hits != 0 || stats.Evictions != 0 {
			t.Errorf("Stats after clear = %+v, want counters reset", stats)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					text := fmt.Sprintf("text-%d-%d", id, j)
					cache.Put(TaskDocument, text, []float32{float32(id), float32(j)})
					cache.Get(TaskDocument, text)
				}
			}(i)
		}
		wg.Wait()

		if cache.Size() == 0 {
			t.Error("Cache is empty after concurrent operations")
		}
	})
}
