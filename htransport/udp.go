package htransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// UDPTransport sends and receives messages over a single UDP socket.
type UDPTransport struct {
	log  *slog.Logger
	conn *net.UDPConn

	wg sync.WaitGroup
}

// NewUDPTransport binds a UDP socket on the given address.
func NewUDPTransport(log *slog.Logger, bind netip.AddrPort) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bind))
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP transport: %w", err)
	}

	return &UDPTransport{log: log, conn: conn}, nil
}

// LocalAddr returns the bound address,
// which is the locator other participants should be told about.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	return t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Send implements [Sender].
func (t *UDPTransport) Send(_ context.Context, to Locator, payload []byte) error {
	if to.IsZero() {
		return nil
	}
	if to.Kind != KindUDPv4 {
		return fmt.Errorf("UDP transport cannot send to %v locator", to.Kind)
	}

	if _, err := t.conn.WriteToUDPAddrPort(payload, to.Addr); err != nil {
		return fmt.Errorf("failed to send to %v: %w", to, err)
	}
	return nil
}

// Receive starts a goroutine reading inbound datagrams into out.
// The goroutine stops when ctx is canceled or the socket is closed;
// call [*UDPTransport.Wait] after cancellation.
func (t *UDPTransport) Receive(ctx context.Context, out chan<- Datagram) {
	// Closing the socket is the only way to interrupt a blocked read.
	context.AfterFunc(ctx, func() {
		_ = t.conn.Close()
	})

	t.wg.Add(1)
	go t.receiveLoop(ctx, out)
}

func (t *UDPTransport) receiveLoop(ctx context.Context, out chan<- Datagram) {
	defer t.wg.Done()

	buf := make([]byte, 64*1024)
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Info("Transient UDP read error", "err", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case <-ctx.Done():
			return
		case out <- Datagram{From: from, Payload: payload}:
			// Okay.
		}
	}
}

// Wait blocks until the receive loop has stopped.
func (t *UDPTransport) Wait() {
	t.wg.Wait()
}

// Close closes the socket.
// Redundant if Receive was started, since cancellation closes the socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
