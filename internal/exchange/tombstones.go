// ABOUTME: TTL and size bounded set of released identifiers
// ABOUTME: Oldest-first eviction with a background sweep goroutine

package exchange

import (
	"container/list"
	"sync"
	"time"
)

type tombstone struct {
	id         string
	releasedAt time.Time
}

// tombstoneSet remembers released identifiers long enough to absorb frames
// that were already in flight when the exchange ended. Entries age out
// after ttl; when the set is full the oldest entry is evicted first.
type tombstoneSet struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
	ttl     time.Duration
	maxSize int

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newTombstoneSet(ttl time.Duration, maxSize int) *tombstoneSet {
	s := &tombstoneSet{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *tombstoneSet) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[id]; ok {
		el.Value.(*tombstone).releasedAt = time.Now()
		s.order.MoveToBack(el)
		return
	}
	for len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	el := s.order.PushBack(&tombstone{id: id, releasedAt: time.Now()})
	s.entries[id] = el
}

func (s *tombstoneSet) contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return false
	}
	if time.Since(el.Value.(*tombstone).releasedAt) > s.ttl {
		s.order.Remove(el)
		delete(s.entries, id)
		return false
	}
	return true
}

// evictOldest removes the front entry. Caller holds the lock.
func (s *tombstoneSet) evictOldest() {
	el := s.order.Front()
	if el == nil {
		return
	}
	s.order.Remove(el)
	delete(s.entries, el.Value.(*tombstone).id)
}

// sweep drops expired entries so an idle connection does not pin memory
// until the next lookup.
func (s *tombstoneSet) sweep() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *tombstoneSet) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for el := s.order.Front(); el != nil; {
		ts := el.Value.(*tombstone)
		if now.Sub(ts.releasedAt) <= s.ttl {
			break
		}
		next := el.Next()
		s.order.Remove(el)
		delete(s.entries, ts.id)
		el = next
	}
}

func (s *tombstoneSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *tombstoneSet) close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
