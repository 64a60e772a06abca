package trial

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	expires time.Time // zero for lifetime counters
}

// MemoryStore keeps counters in process memory. Counts reset on restart and
// are not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: now}
}

func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Count(_ context.Context, action Action, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(counterKey(action, subject)); e != nil {
		return e.count, nil
	}
	return 0, nil
}

func (s *MemoryStore) Incr(_ context.Context, action Action, subject string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(action, subject)
	e := s.live(key)
	if e == nil {
		e = &memoryEntry{}
		if window > 0 {
			e.expires = s.now().Add(window)
		}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func counterKey(action Action, subject string) string {
	return "trial:" + string(action) + ":" + subject
}
