package session

import "time"

type cacheEntry[T any] struct {
	value    T
	cachedAt time.Time
	seq      uint64
}

// boundedStore is one cache namespace. When full, the entry with the oldest
// cachedAt is evicted before a new key is inserted; reads do not refresh an
// entry's position. Callers serialize access.
type boundedStore[T any] struct {
	max     int
	seq     uint64
	entries map[string]cacheEntry[T]
}

func newBoundedStore[T any](max int) *boundedStore[T] {
	if max < 1 {
		max = 1
	}
	return &boundedStore[T]{max: max, entries: make(map[string]cacheEntry[T])}
}

func (s *boundedStore[T]) get(key string) (cacheEntry[T], bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *boundedStore[T]) put(key string, value T, cachedAt time.Time) {
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.max {
		s.evictOldest()
	}
	s.seq++
	s.entries[key] = cacheEntry[T]{value: value, cachedAt: cachedAt, seq: s.seq}
}

func (s *boundedStore[T]) remove(key string) {
	delete(s.entries, key)
}

func (s *boundedStore[T]) len() int {
	return len(s.entries)
}

func (s *boundedStore[T]) evictOldest() {
	var (
		oldestKey string
		oldest    cacheEntry[T]
		found     bool
	)
	for key, e := range s.entries {
		if !found || e.cachedAt.Before(oldest.cachedAt) ||
			(e.cachedAt.Equal(oldest.cachedAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = key, e, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
