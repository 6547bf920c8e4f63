// Package cache stores query results keyed by normalised query text.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/pkg/utils"
)

// Entry is immutable once stored.
type Entry struct {
	Result    *query.Result `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type Stats struct {
	Entries  int64   `json:"total_cached_queries"`
	Requests int64   `json:"total_query_requests"`
	Hits     int64   `json:"total_cache_hits"`
	Misses   int64   `json:"total_cache_misses"`
	HitRate  float64 `json:"cache_hit_rate"`
}

// NewStats fills in the derived totals. HitRate is a percentage rounded to
// two decimals.
func NewStats(entries, hits, misses int64) Stats {
	s := Stats{Entries: entries, Hits: hits, Misses: misses, Requests: hits + misses}
	if s.Requests > 0 {
		s.HitRate = float64(int64(float64(hits)/float64(s.Requests)*10000+0.5)) / 100
	}
	return s
}

type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, result *query.Result, ttl time.Duration) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Key fingerprints a query so that case and whitespace differences collide.
func Key(statement string) string {
	return utils.HashString(utils.NormalizeQuery(statement))
}

type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && e.Expired(m.now()) {
		m.mu.Lock()
		if cur, still := m.entries[key]; still && cur == e {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		ok = false
	}

	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}

	m.hits.Add(1)
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, key string, result *query.Result, ttl time.Duration) error {
	now := m.now()
	e := &Entry{Result: result, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	n := int64(len(m.entries))
	m.mu.RUnlock()
	return NewStats(n, m.hits.Load(), m.misses.Load()), nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
