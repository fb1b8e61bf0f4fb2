package htransport

import (
	"context"
	"sync"
)

// Loopback is an in-memory [Sender] delivering payloads
// to handlers registered per locator.
// It exists for tests and single-process wiring.
type Loopback struct {
	mu       sync.RWMutex
	handlers map[Locator]func(payload []byte)
}

// NewLoopback returns an empty loopback sender.
func NewLoopback() *Loopback {
	return &Loopback{
		handlers: map[Locator]func(payload []byte){},
	}
}

// Handle registers fn as the receiver for the given locator,
// replacing any previous handler.
func (l *Loopback) Handle(loc Locator, fn func(payload []byte)) {
	l.mu.Lock()
	l.handlers[loc] = fn
	l.mu.Unlock()
}

// Send implements [Sender].
// Payloads to unregistered locators are dropped,
// matching datagram semantics.
func (l *Loopback) Send(_ context.Context, to Locator, payload []byte) error {
	if to.IsZero() {
		return nil
	}

	l.mu.RLock()
	fn := l.handlers[to]
	l.mu.RUnlock()

	if fn != nil {
		p := make([]byte, len(payload))
		copy(p, payload)
		fn(p)
	}
	return nil
}
