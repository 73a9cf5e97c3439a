package storage

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

const benchKeySpace = 1 << 16

func benchKeys() []string {
	keys := make([]string, benchKeySpace)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

func BenchmarkSet(b *testing.B) {
	store := New(benchKeySpace, 8)
	keys := benchKeys()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			store.Set(keys[rng.Intn(benchKeySpace)], "value", 0)
		}
	})
}

func BenchmarkGet(b *testing.B) {
	store := New(benchKeySpace, 8)
	keys := benchKeys()
	for _, k := range keys {
		store.Set(k, "value", 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			store.Get(keys[rng.Intn(benchKeySpace)])
		}
	})
}

func BenchmarkSetWithTTL(b *testing.B) {
	store := New(benchKeySpace, 8)
	keys := benchKeys()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			store.Set(keys[rng.Intn(benchKeySpace)], "value", time.Minute)
		}
	})
}

// BenchmarkMixed approximates a cache workload: mostly reads with some
// writes and the occasional delete.
func BenchmarkMixed(b *testing.B) {
	store := New(benchKeySpace, 8)
	keys := benchKeys()
	for _, k := range keys {
		store.Set(k, "value", 0)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			key := keys[rng.Intn(benchKeySpace)]
			switch rng.Intn(10) {
			case 0:
				store.Set(key, "value", time.Minute)
			case 1:
				store.Del(key)
			default:
				store.Get(key)
			}
		}
	})
}

func BenchmarkShardFanOut(b *testing.B) {
	keys := benchKeys()
	for _, shards := range []int{1, 4, 16, 64} {
		b.Run(fmt.Sprintf("shards-%d", shards), func(b *testing.B) {
			store := New(benchKeySpace, shards)
			b.RunParallel(func(pb *testing.PB) {
				rng := rand.New(rand.NewSource(time.Now().UnixNano()))
				for pb.Next() {
					store.Set(keys[rng.Intn(benchKeySpace)], "value", 0)
				}
			})
		})
	}
}
