// Package hpubsub delivers discovery and membership changes
// to endpoint kernels.
//
// A writer kernel, a reader kernel, and a diagnostics consumer
// may all care about the same AddReader event, and each runs its own
// select loop at its own pace. [Feed] gives them one immutable,
// append-only sequence to follow: the publisher appends,
// and every follower walks the same chain of nodes independently,
// selecting on Ready alongside its tickers and context.
package hpubsub

import "context"

// Feed is one node in an append-only chain of values.
//
// A follower holds a *Feed as its cursor: select on Ready,
// read Val, move the cursor to Next, repeat. Cursors never miss
// or reorder values, because the chain itself is the history.
// The cost is memory: a stalled cursor pins its node and every
// later one, so abandoned followers should drop their reference.
type Feed[T any] struct {
	// Ready is closed once Val and Next are safe to read.
	Ready chan struct{}

	// Next is the following node, non-nil once Ready is closed.
	Next *Feed[T]

	// Val is the posted value, valid once Ready is closed.
	Val T
}

// NewFeed returns the head of a new chain, before any value.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{
		Ready: make(chan struct{}),
	}
}

// Post fills in f, links the next node, and closes Ready.
// The publisher's cursor is f.Next afterwards.
// A node holds exactly one value for its lifetime;
// posting to the same node twice panics.
func (f *Feed[T]) Post(v T) {
	f.Val = v
	f.Next = NewFeed[T]()
	close(f.Ready)
}

// RunChannelToFeed bridges a channel-producing source,
// such as an external discovery protocol, onto a feed.
// It starts a goroutine moving values from ch onto the returned
// feed's chain; done closes when ctx is canceled or ch is closed.
func RunChannelToFeed[T any](ctx context.Context, ch <-chan T) (
	f *Feed[T], done <-chan struct{},
) {
	f = NewFeed[T]()
	doneCh := make(chan struct{})

	go pumpChannel(ctx, ch, f, doneCh)

	return f, doneCh
}

func pumpChannel[T any](
	ctx context.Context,
	ch <-chan T,
	f *Feed[T],
	done chan<- struct{},
) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return

		case v, ok := <-ch:
			if !ok {
				return
			}
			f.Post(v)
			f = f.Next
		}
	}
}
