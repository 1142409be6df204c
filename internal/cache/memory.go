package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sakif/covid-dashboard/internal/model"
)

type memoryEntry struct {
	stats   model.CountryStats
	seq     uint64
	expires time.Time
}

// Memory is a process-local Store. It is the default when no Redis address
// is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nextSeq uint64
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Upsert(_ context.Context, stats []model.CountryStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, s := range stats {
		e, ok := m.entries[s.Country]
		if !ok || !now.Before(e.expires) {
			m.nextSeq++
			e.seq = m.nextSeq
		}
		e.stats = s
		e.expires = now.Add(m.ttl)
		m.entries[s.Country] = e
	}
	return nil
}

// Snapshot returns the live entries in first-seen order. Expired entries are
// removed as a side effect.
func (m *Memory) Snapshot(_ context.Context) ([]model.CountryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := make([]memoryEntry, 0, len(m.entries))
	for country, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, country)
			continue
		}
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	out := make([]model.CountryStats, len(live))
	for i, e := range live {
		out[i] = e.stats
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
