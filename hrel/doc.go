// Package hrel contains the per-peer acknowledgement state
// behind reliable delivery: the writer's view of each matched reader,
// the reader's view of each matched writer,
// and the concurrent registries holding them.
//
// Nothing in this package performs I/O or blocks.
// Every operation is an in-memory mutation,
// safe to call from the data path and the control path concurrently.
package hrel
