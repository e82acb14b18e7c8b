package erp

import (
	"sync"
	"time"
)

// employeeCache maps employee id to display name. It mirrors the source
// system's coarse invalidation semantics on purpose: a single timestamp marks
// when the cache was first filled, and once the TTL elapses the entire map is
// dropped at once. There is no per-entry expiry.
type employeeCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	names    map[int64]string
	filledAt time.Time
	now      func() time.Time
}

func newEmployeeCache(ttl time.Duration) *employeeCache {
	return &employeeCache{
		ttl:   ttl,
		names: make(map[int64]string),
		now:   time.Now,
	}
}

func (c *employeeCache) get(id int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	name, ok := c.names[id]
	return name, ok
}

func (c *employeeCache) set(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	if len(c.names) == 0 {
		c.filledAt = c.now()
	}
	c.names[id] = name
}

func (c *employeeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return len(c.names)
}

// expireLocked drops the whole map once the fill timestamp is older than the
// TTL. Callers must hold c.mu.
func (c *employeeCache) expireLocked() {
	if c.filledAt.IsZero() {
		return
	}
	if c.now().Sub(c.filledAt) > c.ttl {
		c.names = make(map[int64]string)
		c.filledAt = time.Time{}
	}
}
