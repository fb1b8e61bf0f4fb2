// Package hhist holds a writer's sample history
// so that ACKNACK-requested sequences can be retransmitted.
package hhist

import (
	"sync"

	"github.com/heron-dds/heron/hseq"
)

// Cache is a bounded, sequence-indexed sample store.
//
// Sequences are assigned by the cache on Add, starting at [hseq.First].
// When the depth bound is exceeded, the oldest samples are evicted
// regardless of acknowledgement state; the caller is told which ones
// so it can announce them as GAPs to slow readers.
type Cache struct {
	mu sync.RWMutex

	samples map[hseq.Number][]byte

	next   hseq.Number
	lowest hseq.Number

	depth int
}

// DefaultDepth bounds history when the caller does not choose one.
const DefaultDepth = 256

// New returns an empty cache retaining at most depth samples.
// A depth below 1 falls back to [DefaultDepth].
func New(depth int) *Cache {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Cache{
		samples: make(map[hseq.Number][]byte),
		next:    hseq.First,
		lowest:  hseq.First,
		depth:   depth,
	}
}

// Add stores payload under the next sequence number and returns it,
// along with any sequences evicted to stay within depth.
// The cache keeps its own copy of payload.
func (c *Cache) Add(payload []byte) (seq hseq.Number, evicted []hseq.Number) {
	p := make([]byte, len(payload))
	copy(p, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	seq = c.next
	c.samples[seq] = p
	c.next = c.next.Next()

	for len(c.samples) > c.depth {
		if _, ok := c.samples[c.lowest]; ok {
			delete(c.samples, c.lowest)
			evicted = append(evicted, c.lowest)
		}
		c.lowest = c.lowest.Next()
	}

	return seq, evicted
}

// Get returns the payload for seq, if still retained.
func (c *Cache) Get(seq hseq.Number) ([]byte, bool) {
	c.mu.RLock()
	p, ok := c.samples[seq]
	c.mu.RUnlock()
	return p, ok
}

// Range returns the retained sequence range [first, last].
// An empty cache returns first > last:
// the "writer has nothing" announcement.
func (c *Cache) Range() (first, last hseq.Number) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.samples) == 0 {
		return c.next, c.next - 1
	}
	return c.lowest, c.next - 1
}

// DropBelow discards every sample below seq, returning the count.
// The slowest reader's acknowledged watermark is the usual argument:
// nothing below it can ever be requested again.
func (c *Cache) DropBelow(seq hseq.Number) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Nothing above the assigned range exists to drop.
	if seq > c.next {
		seq = c.next
	}

	var n int
	for c.lowest < seq {
		if _, ok := c.samples[c.lowest]; ok {
			delete(c.samples, c.lowest)
			n++
		}
		c.lowest = c.lowest.Next()
	}
	return n
}

// Len returns the number of retained samples.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}
