package erp

import (
	"testing"
	"time"
)

func TestEmployeeCacheHitWithinTTL(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newEmployeeCache(30 * time.Minute)
	c.now = func() time.Time { return clock }

	c.set(1, "Aye Chan")

	clock = clock.Add(29 * time.Minute)
	name, ok := c.get(1)
	if !ok || name != "Aye Chan" {
		t.Errorf("get = (%q, %v), want (Aye Chan, true)", name, ok)
	}
}

func TestEmployeeCacheWholesaleExpiry(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newEmployeeCache(30 * time.Minute)
	c.now = func() time.Time { return clock }

	c.set(1, "Aye Chan")

	// A later entry does not push the expiry forward: the clock starts at
	// first fill.
	clock = clock.Add(20 * time.Minute)
	c.set(2, "Zaw Zaw")

	clock = clock.Add(11 * time.Minute)
	if _, ok := c.get(1); ok {
		t.Error("entry 1 should be gone after the fill TTL elapsed")
	}
	if _, ok := c.get(2); ok {
		t.Error("entry 2 expires with the whole map, not on its own clock")
	}
	if c.len() != 0 {
		t.Errorf("len = %d, want 0 after wholesale expiry", c.len())
	}
}

func TestEmployeeCacheRefillsAfterExpiry(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newEmployeeCache(30 * time.Minute)
	c.now = func() time.Time { return clock }

	c.set(1, "Aye Chan")
	clock = clock.Add(31 * time.Minute)

	// First write after expiry restarts the fill clock.
	c.set(3, "Su Myat")
	clock = clock.Add(29 * time.Minute)

	if name, ok := c.get(3); !ok || name != "Su Myat" {
		t.Errorf("get = (%q, %v), want (Su Myat, true)", name, ok)
	}
	if _, ok := c.get(1); ok {
		t.Error("entry from before the expiry must not resurface")
	}
}
