package search

import "sync"

// queryCache holds finished result lists for the lifetime of the
// process, keyed by the raw query string. There is no eviction; a
// restart is the only invalidation.
type queryCache struct {
	mu      sync.Mutex
	entries map[string][]Result
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[string][]Result)}
}

func (c *queryCache) Get(query string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	out := make([]Result, len(entry))
	copy(out, entry)
	return out, true
}

func (c *queryCache) Set(query string, results []Result) {
	entry := make([]Result, len(results))
	copy(entry, results)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = entry
}
