package hseq

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
)

// MaxSetBits is the widest window a NumberSet can cover.
// The wire representation of a sequence number set
// caps the bitmap at 256 bits, so the in-memory form does too.
const MaxSetBits = 256

// NumberSet is a set of sequence numbers at and above a base:
// the payload of an ACKNACK (sequences the reader still wants)
// or a GAP (sequences the writer will never deliver).
//
// The base is conceptually "the next sequence the reader wants";
// everything below the base is implicitly acknowledged.
type NumberSet struct {
	base Number
	bits *bitset.BitSet
}

// NewNumberSet returns an empty set with the given base.
// A base below [First] is raised to First;
// the bitmap base invariant is that it is always >= 1.
func NewNumberSet(base Number) *NumberSet {
	if base < First {
		base = First
	}
	return &NumberSet{
		base: base,
		bits: bitset.New(MaxSetBits),
	}
}

// FromWords reconstructs a set from its wire form:
// a base, a bit count, and little-endian 64-bit words.
func FromWords(base Number, numBits uint32, words []uint64) *NumberSet {
	if base < First {
		base = First
	}
	if numBits > MaxSetBits {
		numBits = MaxSetBits
	}

	bits := bitset.FromWithLength(uint(numBits), words)
	return &NumberSet{base: base, bits: bits}
}

// Base returns the set's base sequence number.
func (s *NumberSet) Base() Number {
	return s.base
}

// Insert adds n to the set.
// It reports false, without modifying the set,
// if n is below the base or beyond the [MaxSetBits] window.
func (s *NumberSet) Insert(n Number) bool {
	if n < s.base {
		return false
	}
	off := int64(n - s.base)
	if off >= MaxSetBits {
		return false
	}
	s.bits.Set(uint(off))
	return true
}

// InsertRange adds every sequence in [from, to] to the set,
// clamped to the set's window.
func (s *NumberSet) InsertRange(from, to Number) {
	for n := Max(from, s.base); n <= to; n = n.Next() {
		if !s.Insert(n) {
			return
		}
	}
}

// Contains reports whether n is in the set.
func (s *NumberSet) Contains(n Number) bool {
	if n < s.base {
		return false
	}
	off := int64(n - s.base)
	if off >= MaxSetBits {
		return false
	}
	return s.bits.Test(uint(off))
}

// IsEmpty reports whether the set has no bits raised.
// An empty ACKNACK set is a pure acknowledgement:
// everything below the base is received and nothing is requested.
func (s *NumberSet) IsEmpty() bool {
	return s.bits.None()
}

// Count returns the number of sequences in the set.
func (s *NumberSet) Count() int {
	return int(s.bits.Count())
}

// NumBits returns the number of significant bits for the wire form.
func (s *NumberSet) NumBits() uint32 {
	if s.bits.None() {
		return 0
	}
	// Highest set bit determines the significant width.
	var high uint
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		high = i
	}
	return uint32(high) + 1
}

// Words returns the underlying bitmap words for the wire form.
func (s *NumberSet) Words() []uint64 {
	return s.bits.Words()
}

// Numbers iterates the set's sequence numbers in ascending order.
func (s *NumberSet) Numbers() iter.Seq[Number] {
	return func(yield func(Number) bool) {
		for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
			if !yield(s.base + Number(i)) {
				return
			}
		}
	}
}
