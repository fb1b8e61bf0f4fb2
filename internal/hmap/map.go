// Package hmap contains a sharded map keyed by GUID,
// shared between a latency-sensitive data path
// and a timer/datagram-driven control path.
package hmap

import (
	"encoding/binary"
	"sync"

	"github.com/heron-dds/heron/hguid"
)

const numShards = 16

// Map is a concurrent map from GUID to V.
//
// Entries under different shards are read and mutated
// without contending on a map-wide lock.
// Values are expected to be pointers guarding their own fields,
// so that holding a shard lock is only required
// for the map structure itself, never for entry mutation.
type Map[V any] struct {
	shards [numShards]shard[V]
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[hguid.GUID]V
}

// New returns an initialized map.
func New[V any]() *Map[V] {
	m := new(Map[V])
	for i := range m.shards {
		m.shards[i].m = make(map[hguid.GUID]V)
	}
	return m
}

func (m *Map[V]) shardFor(g hguid.GUID) *shard[V] {
	// The prefix starts with two fixed vendor bytes,
	// but bytes 2-5 are pure entropy.
	idx := binary.LittleEndian.Uint32(g[2:6]) % numShards
	return &m.shards[idx]
}

// Get returns the value for g, if present.
func (m *Map[V]) Get(g hguid.GUID) (V, bool) {
	s := m.shardFor(g)
	s.mu.RLock()
	v, ok := s.m[g]
	s.mu.RUnlock()
	return v, ok
}

// Store sets the value for g unconditionally.
func (m *Map[V]) Store(g hguid.GUID, v V) {
	s := m.shardFor(g)
	s.mu.Lock()
	s.m[g] = v
	s.mu.Unlock()
}

// GetOrCreate returns the existing value for g,
// or stores and returns create() if g is absent.
// The second return reports whether the value already existed.
func (m *Map[V]) GetOrCreate(g hguid.GUID, create func() V) (V, bool) {
	s := m.shardFor(g)

	s.mu.RLock()
	v, ok := s.m[g]
	s.mu.RUnlock()
	if ok {
		return v, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have raced us between the two locks.
	if v, ok := s.m[g]; ok {
		return v, true
	}

	v = create()
	s.m[g] = v
	return v, false
}

// Delete removes g, reporting whether it was present.
func (m *Map[V]) Delete(g hguid.GUID) bool {
	s := m.shardFor(g)
	s.mu.Lock()
	_, ok := s.m[g]
	delete(s.m, g)
	s.mu.Unlock()
	return ok
}

// DeleteFunc removes every entry for which del reports true,
// returning the number removed.
// del must not call back into the map.
func (m *Map[V]) DeleteFunc(del func(hguid.GUID, V) bool) int {
	var n int
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for g, v := range s.m {
			if del(g, v) {
				delete(s.m, g)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Range calls fn for each entry until fn reports false.
// Only one shard is locked at a time,
// so entries added or removed concurrently in other shards
// may or may not be observed.
func (m *Map[V]) Range(fn func(hguid.GUID, V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for g, v := range s.m {
			if !fn(g, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	var n int
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes every entry.
func (m *Map[V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		clear(s.m)
		s.mu.Unlock()
	}
}
