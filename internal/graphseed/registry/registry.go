// Package registry tracks values already handed out during a generation run so that concurrent tasks never
// produce the same unique value twice.
package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/spaolacci/murmur3"
)

// ErrExhausted is returned when a candidate generator keeps colliding with already reserved values.
var ErrExhausted = errors.New("no unreserved candidate found")

// Reserver hands out values that are unique per key.
type Reserver[K comparable, V comparable] interface {
	// Reserve calls candidate until it yields a value not yet associated with key, records it and returns it.
	Reserve(ctx context.Context, key K, candidate func() V) (V, error)
}

// ValueReserver is the global-value flavour, keyed by a property name such as "userName".
type ValueReserver = Reserver[string, string]

type shard[K comparable, V comparable] struct {
	mu     sync.Mutex
	values map[K]map[V]struct{}
}

// Registry is an in-memory Reserver whose keys are spread over independently locked shards.
type Registry[K comparable, V comparable] struct {
	shards      []*shard[K, V]
	hash        func(K) uint32
	maxAttempts int
}

// New creates a registry. maxAttempts bounds consecutive collisions in a single Reserve call, zero meaning unbounded.
func New[K comparable, V comparable](shards int, maxAttempts int, hash func(K) uint32) *Registry[K, V] {
	if shards < 1 {
		shards = 1
	}
	r := &Registry[K, V]{
		shards:      make([]*shard[K, V], shards),
		hash:        hash,
		maxAttempts: maxAttempts,
	}
	for i := range r.shards {
		r.shards[i] = &shard[K, V]{values: map[K]map[V]struct{}{}}
	}
	return r
}

// NewValueRegistry creates a global-value registry keyed by property name.
func NewValueRegistry(shards int, maxAttempts int) *Registry[string, string] {
	return New[string, string](shards, maxAttempts, func(key string) uint32 {
		return murmur3.Sum32([]byte(key))
	})
}

// NewDestinationRegistry creates a per-origin registry of destinations already linked from that origin.
func NewDestinationRegistry(shards int, maxAttempts int) *Registry[int64, int64] {
	return New[int64, int64](shards, maxAttempts, func(origin int64) uint32 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(origin))
		return murmur3.Sum32(buf[:])
	})
}

func (r *Registry[K, V]) shardFor(key K) *shard[K, V] {
	return r.shards[r.hash(key)%uint32(len(r.shards))]
}

// Reserve implements Reserver. Candidates are generated outside the shard lock.
func (r *Registry[K, V]) Reserve(ctx context.Context, key K, candidate func() V) (V, error) {
	s := r.shardFor(key)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			var zero V
			return zero, err
		}
		v := candidate()
		s.mu.Lock()
		set, ok := s.values[key]
		if !ok {
			set = map[V]struct{}{}
			s.values[key] = set
		}
		if _, taken := set[v]; !taken {
			set[v] = struct{}{}
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()
		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			var zero V
			return zero, ErrExhausted
		}
	}
}

// Contains reports whether v has been reserved under key.
func (r *Registry[K, V]) Contains(key K, v V) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key][v]
	return ok
}

// Len returns the number of values reserved under key.
func (r *Registry[K, V]) Len(key K) int {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values[key])
}

// Release forgets every value reserved under key.
func (r *Registry[K, V]) Release(key K) {
	s := r.shardFor(key)
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Reset forgets everything.
func (r *Registry[K, V]) Reset() {
	for _, s := range r.shards {
		s.mu.Lock()
		s.values = map[K]map[V]struct{}{}
		s.mu.Unlock()
	}
}
