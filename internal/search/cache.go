package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/bookshard/internal/query"
)

// Cache keeps recent responses for a fixed time.
// A nil *Cache is valid and caches nothing.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	resp    Response
	expires time.Time
}

// NewCache returns a cache holding up to maxEntries responses for ttl each.
// It returns nil when ttl is not positive.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries < 1 {
		maxEntries = 1024
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// cacheKey identifies a request by its compiled queries, bound values and
// resolved targets. The requested page is implied by the row query.
func cacheKey(compiled query.Compiled, targets []string) string {
	keys := make([]string, 0, len(compiled.Params))
	for k := range compiled.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(compiled.RowQuery)
	b.WriteByte('\x00')
	b.WriteString(compiled.CountQuery)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(compiled.Params[k])
	}
	b.WriteByte('\x00')
	b.WriteString(strings.Join(targets, "\x1f"))
	return b.String()
}

// Get returns a cached response that has not expired.
func (c *Cache) Get(key string) (Response, bool) {
	if c == nil {
		return Response{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Response{}, false
	}
	return e.resp, true
}

// Put stores resp under key. When full, expired entries are dropped first,
// then the entry closest to expiry.
func (c *Cache) Put(key string, resp Response) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = cacheEntry{resp: resp, expires: now.Add(c.ttl)}
}

func (c *Cache) evict(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Purge drops every entry. Called when the set of connected shards changes.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
