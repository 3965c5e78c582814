package registry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Sharded is a concurrent string-keyed map split into independently locked
// shards, selected by hashing the key. Writes from many flows contend only
// within a shard; Snapshot walks all of them.
type Sharded[T any] struct {
	shards []shard[T]
}

type shard[T any] struct {
	mu sync.Mutex
	m  map[string]T
}

func NewSharded[T any](numShards int) *Sharded[T] {
	if numShards <= 0 {
		numShards = 1
	}
	shards := make([]shard[T], numShards)
	for i := range shards {
		shards[i].m = make(map[string]T)
	}
	return &Sharded[T]{shards: shards}
}

func (s *Sharded[T]) shardOf(key string) *shard[T] {
	if len(s.shards) == 1 {
		return &s.shards[0]
	}
	return &s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *Sharded[T]) Put(key string, val T) {
	sh := s.shardOf(key)
	sh.mu.Lock()
	sh.m[key] = val
	sh.mu.Unlock()
}

func (s *Sharded[T]) Delete(key string) {
	sh := s.shardOf(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

func (s *Sharded[T]) Get(key string) (T, bool) {
	sh := s.shardOf(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	val, ok := sh.m[key]
	return val, ok
}

// Snapshot returns the current values across all shards. The result is a
// point-in-time copy per shard, not a consistent cut across shards.
func (s *Sharded[T]) Snapshot() []T {
	var out []T
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, v := range sh.m {
			out = append(out, v)
		}
		sh.mu.Unlock()
	}
	return out
}

func (s *Sharded[T]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
