package fbexec

import "sync"

// twoTierCache is a map bounded by generation rotation. 'curr' is the hot
// set and 'prev' the previous generation; a hit in prev promotes the entry.
// Safe for concurrent use.
type twoTierCache[K comparable, V any] struct {
	mu   sync.RWMutex
	curr map[K]V
	prev map[K]V
	max  int
}

// newTwoTierCache returns a cache rotating once curr holds max entries.
func newTwoTierCache[K comparable, V any](max int) *twoTierCache[K, V] {
	if max <= 0 {
		max = cacheSize
	}
	return &twoTierCache[K, V]{
		curr: make(map[K]V, max/2),
		prev: make(map[K]V),
		max:  max,
	}
}

func (c *twoTierCache[K, V]) get(k K) (V, bool) {
	c.mu.RLock()
	if v, ok := c.curr[k]; ok {
		c.mu.RUnlock()
		return v, true
	}
	v, ok := c.prev[k]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	c.put(k, v)
	return v, true
}

func (c *twoTierCache[K, V]) put(k K, v V) {
	c.mu.Lock()
	if len(c.curr) >= c.max {
		c.prev = c.curr
		c.curr = make(map[K]V, c.max/2)
	}
	c.curr[k] = v
	c.mu.Unlock()
}
