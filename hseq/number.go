// Package hseq contains sequence number primitives
// for the reliable delivery protocol.
package hseq

import "math"

// Number is a per-writer sequence number.
// The first sample a writer publishes has sequence number 1;
// zero means "nothing" and negative values never appear on the wire.
type Number int64

const (
	// None is the zero value, meaning no sequence number.
	None Number = 0

	// First is the sequence number of a writer's first sample.
	First Number = 1

	// Limit is the highest representable sequence number.
	// Arithmetic on Number saturates here rather than wrapping.
	Limit Number = math.MaxInt64
)

// Next returns the sequence number following n, saturating at [Limit].
func (n Number) Next() Number {
	if n >= Limit {
		return Limit
	}
	return n + 1
}

// Add returns n advanced by d, saturating at [Limit].
// d must not be negative.
func (n Number) Add(d int64) Number {
	if d < 0 {
		panic("hseq: Add with negative delta")
	}
	if int64(n) > int64(Limit)-d {
		return Limit
	}
	return n + Number(d)
}

// Max returns the larger of a and b.
func Max(a, b Number) Number {
	if a > b {
		return a
	}
	return b
}
