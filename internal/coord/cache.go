package coord

import (
	"strings"
	"sync"
	"time"

	"predictdash/internal/infra/clock"
)

// Entry is one cached panel payload.
type Entry struct {
	Key       string
	Payload   any
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry may be served at now.
func (e Entry) Fresh(now time.Time) bool { return now.Sub(e.FetchedAt) < e.TTL }

// Age is the time elapsed since the payload was fetched.
func (e Entry) Age(now time.Time) time.Duration { return now.Sub(e.FetchedAt) }

// SectionCache stores fetched panel payloads with a per-entry TTL. Staleness
// is decided by age alone: Get never removes anything.
type SectionCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]Entry
}

func NewSectionCache(c clock.Clock) *SectionCache {
	return &SectionCache{clock: clock.OrReal(c), entries: make(map[string]Entry)}
}

// Get returns the payload for key when it is younger than its TTL.
func (c *SectionCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.Fresh(c.clock.Now()) {
		return nil, false
	}
	return e.Payload, true
}

// Set stores payload stamped with the current time. A non-positive ttl
// stores an entry that is never fresh.
func (c *SectionCache) Set(key string, payload any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = Entry{Key: key, Payload: payload, FetchedAt: c.clock.Now(), TTL: ttl}
	c.mu.Unlock()
}

// Entry returns the stored entry for key regardless of freshness.
func (c *SectionCache) Entry(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *SectionCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every key starting with prefix, e.g. all pages
// of one section.
func (c *SectionCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *SectionCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Prune drops entries that are no longer fresh and returns how many went.
func (c *SectionCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	n := 0
	for k, e := range c.entries {
		if !e.Fresh(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, fresh or not.
func (c *SectionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
