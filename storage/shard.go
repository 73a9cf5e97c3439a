package storage

import (
	"container/heap"
	"sync"
	"time"
)

// entry is one mapping record. A zero deadline means the entry never
// expires.
type entry struct {
	value    string
	deadline time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !e.deadline.After(now)
}

// expiryItem is one (deadline, key) pair in a shard's expiration index.
// Overwrites and deletes leave stale pairs behind; a pop is only honored
// after cross-checking the map.
type expiryItem struct {
	deadline time.Time
	key      string
}

// expiryIndex is a max-oriented heap over (deadline, key). It implements
// heap.Interface; callers go through the heap package.
type expiryIndex []expiryItem

func (h expiryIndex) Len() int { return len(h) }

func (h expiryIndex) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.After(h[j].deadline)
	}
	return h[i].key > h[j].key
}

func (h expiryIndex) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *expiryIndex) Push(x any) {
	*h = append(*h, x.(expiryItem))
}

func (h *expiryIndex) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// shard is an independently locked partition of the key space. All
// operations on a shard are serialized by its lock; reads share it.
type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
	expiry  expiryIndex
}

func newShard(capacity int) *shard {
	return &shard{
		entries: make(map[string]entry, capacity),
	}
}

// set installs or overwrites a key under the write lock and returns the
// previous live value, if any, together with the net change in entry
// count. A non-zero deadline is also pushed on the expiration index.
func (s *shard) set(key, value string, deadline, now time.Time) (prev string, hadPrev bool, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta -= s.evictExpired(now)

	old, ok := s.entries[key]
	if !ok {
		delta++
	}
	s.entries[key] = entry{value: value, deadline: deadline}
	if !deadline.IsZero() {
		heap.Push(&s.expiry, expiryItem{deadline: deadline, key: key})
	}
	if !ok || old.expired(now) {
		return "", false, delta
	}
	return old.value, true, delta
}

// get returns the live value for key. Entries whose deadline has passed
// are reported absent; removal is left to lazy eviction by later writes to
// the shard.
func (s *shard) get(key string, now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		return "", false
	}
	return e.value, true
}

// del removes key and reports whether a live entry was dropped, together
// with the net change in entry count. Any pair left in the expiration
// index becomes stale and is discarded when popped.
func (s *shard) del(key string, now time.Time) (live bool, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta -= s.evictExpired(now)

	e, ok := s.entries[key]
	if !ok {
		return false, delta
	}
	delete(s.entries, key)
	return !e.expired(now), delta - 1
}

// evictExpired performs one step of lazy eviction: pop expired pairs off
// the index, discarding stale ones, until an entry is removed or the top
// of the index is still in the future. It returns the number of entries
// removed. Callers hold the write lock.
func (s *shard) evictExpired(now time.Time) int {
	for len(s.expiry) > 0 {
		top := s.expiry[0]
		if top.deadline.After(now) {
			return 0
		}
		heap.Pop(&s.expiry)
		e, ok := s.entries[top.key]
		if !ok || !e.deadline.Equal(top.deadline) {
			// stale pair: the key was deleted or reinserted since
			continue
		}
		delete(s.entries, top.key)
		return 1
	}
	return 0
}
