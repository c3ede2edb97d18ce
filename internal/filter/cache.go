package filter

import "sync"

// DefaultCacheSize is the number of compiled filters a Cache keeps.
const DefaultCacheSize = 1000

type cacheEntry struct {
	filter *Filter
	err    error
}

// Cache memoizes Compile by filter source bytes. The source is compiled
// exactly as given, so operands and key paths are compared byte for byte
// with event properties. Compile failures are cached too. The oldest entry
// is evicted first when the cache is full.
//
// Safe for concurrent use.
type Cache struct {
	opts []Option
	max  int

	mu      sync.RWMutex
	entries map[string]cacheEntry
	order   []string
}

// NewCache creates a cache holding up to size filters compiled with opts.
// A size <= 0 uses DefaultCacheSize.
func NewCache(size int, opts ...Option) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		opts:    opts,
		max:     size,
		entries: make(map[string]cacheEntry),
		order:   make([]string, 0, size),
	}
}

// Get returns the compiled filter for src, compiling it on first use.
func (c *Cache) Get(src []byte) (*Filter, error) {
	key := string(src)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e.filter, e.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.filter, e.err
	}

	f, err := Compile(src, c.opts...)

	if len(c.entries) >= c.max {
		oldest := c.order[0]
		delete(c.entries, oldest)
		c.order = c.order[1:]
	}
	c.entries[key] = cacheEntry{filter: f, err: err}
	c.order = append(c.order, key)
	return f, err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
