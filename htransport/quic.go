package htransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/quic-go/quic-go"
)

// datagramConn is the subset of [*quic.Conn] the QUIC sender uses.
// Narrowing the surface lets tests substitute a fake connection.
type datagramConn interface {
	SendDatagram([]byte) error
	CloseWithError(quic.ApplicationErrorCode, string) error
}

// quicDialFunc establishes a datagram-capable connection to addr.
type quicDialFunc func(ctx context.Context, addr net.Addr) (datagramConn, error)

// QUICSender sends messages as QUIC datagrams,
// dialing and caching one connection per destination.
type QUICSender struct {
	log  *slog.Logger
	dial quicDialFunc

	mu    sync.Mutex
	conns map[netip.AddrPort]datagramConn
}

// NewQUICSender returns a sender dialing through the given QUIC transport.
// The TLS configuration must negotiate a protocol
// that the receiving participant accepts.
func NewQUICSender(
	log *slog.Logger,
	qt *quic.Transport,
	tlsConf *tls.Config,
) *QUICSender {
	qConf := &quic.Config{EnableDatagrams: true}

	return &QUICSender{
		log: log,
		dial: func(ctx context.Context, addr net.Addr) (datagramConn, error) {
			return qt.Dial(ctx, addr, tlsConf, qConf)
		},
		conns: map[netip.AddrPort]datagramConn{},
	}
}

// Send implements [Sender].
func (s *QUICSender) Send(ctx context.Context, to Locator, payload []byte) error {
	if to.IsZero() {
		return nil
	}
	if to.Kind != KindQUIC {
		return fmt.Errorf("QUIC sender cannot send to %v locator", to.Kind)
	}

	conn, err := s.connFor(ctx, to.Addr)
	if err != nil {
		return err
	}

	if err := conn.SendDatagram(payload); err != nil {
		// Drop the cached connection so the next send redials.
		s.mu.Lock()
		if s.conns[to.Addr] == conn {
			delete(s.conns, to.Addr)
		}
		s.mu.Unlock()

		return fmt.Errorf("failed to send datagram to %v: %w", to, err)
	}
	return nil
}

func (s *QUICSender) connFor(ctx context.Context, addr netip.AddrPort) (datagramConn, error) {
	s.mu.Lock()
	conn, ok := s.conns[addr]
	s.mu.Unlock()
	if ok {
		return conn, nil
	}

	conn, err := s.dial(ctx, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %v: %w", addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent send may have dialed first; prefer its connection.
	if existing, ok := s.conns[addr]; ok {
		_ = conn.CloseWithError(0, "duplicate connection")
		return existing, nil
	}

	s.conns[addr] = conn
	return conn, nil
}

// Close closes every cached connection.
func (s *QUICSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, conn := range s.conns {
		_ = conn.CloseWithError(0, "sender closing")
		delete(s.conns, addr)
	}
}
