// Package storage provides the concurrent key/value store behind the
// cache. Keys are spread over a fixed, power-of-two number of
// independently locked shards so hot reads stay lock-local, and per-entry
// TTLs are enforced lazily: an expired entry is masked on read, and each
// write to a shard physically removes at most one expired entry, taken from
// the top of the shard's latest-deadline-first expiration index. An expired
// entry therefore stays in memory while a later deadline in the same shard
// is still pending.
package storage

import (
	"sync/atomic"
	"time"

	"github.com/dchest/siphash"
	"github.com/jonboulle/clockwork"
)

// SipHash keys for shard selection. The hash only has to be deterministic
// and well distributed; it is not part of the wire contract.
const (
	hashK0 = 0x7a636b65796c6421
	hashK1 = 0x646c656b2173686b
)

// Storage is a sharded in-memory map with per-entry TTL. It is safe for
// concurrent use; operations on different shards proceed in parallel.
type Storage struct {
	shards []*shard
	mask   uint64
	clock  clockwork.Clock

	// size counts entries without taking shard locks, since it is read on
	// every mutation for metrics.
	size atomic.Int64
}

// New creates a Storage with the given total capacity hint spread over
// shardCount shards. shardCount must be a power of two; anything else is a
// programming error and panics.
func New(capacity, shardCount int) *Storage {
	return NewWithClock(capacity, shardCount, clockwork.NewRealClock())
}

// NewWithClock is New with an injected clock, used by tests to control
// entry expiry deterministically.
func NewWithClock(capacity, shardCount int, clock clockwork.Clock) *Storage {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		panic("storage: shard count must be a power of two")
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = newShard(capacity / shardCount)
	}
	return &Storage{
		shards: shards,
		mask:   uint64(shardCount - 1),
		clock:  clock,
	}
}

func (s *Storage) shardFor(key string) *shard {
	h := siphash.Hash(hashK0, hashK1, []byte(key))
	return s.shards[h&s.mask]
}

// Set installs or overwrites a key and returns the previous live value if
// one existed. A ttl of zero means the entry never expires; otherwise the
// entry's deadline is now+ttl.
func (s *Storage) Set(key, value string, ttl time.Duration) (string, bool) {
	now := s.clock.Now()
	var deadline time.Time
	if ttl > 0 {
		deadline = now.Add(ttl)
	}
	prev, ok, delta := s.shardFor(key).set(key, value, deadline, now)
	s.size.Add(int64(delta))
	return prev, ok
}

// Get returns the live value for key. Expired entries are not observable.
func (s *Storage) Get(key string) (string, bool) {
	return s.shardFor(key).get(key, s.clock.Now())
}

// Del removes the given keys and returns how many of them existed. Each
// shard lock is taken independently; no cross-shard atomicity is promised.
func (s *Storage) Del(keys ...string) int64 {
	var count int64
	for _, key := range keys {
		live, delta := s.shardFor(key).del(key, s.clock.Now())
		s.size.Add(int64(delta))
		if live {
			count++
		}
	}
	return count
}

// Len reports the approximate number of entries across all shards. Expired
// entries that have not been evicted yet are included.
func (s *Storage) Len() int {
	return int(s.size.Load())
}

// ShardCount reports the fixed shard fan-out.
func (s *Storage) ShardCount() int {
	return len(s.shards)
}
