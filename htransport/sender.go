package htransport

import (
	"context"
	"net/netip"
)

// Sender is the outbound half of the transport seam.
//
// Implementations must be safe for concurrent use:
// the data path and the control path send without coordinating.
type Sender interface {
	// Send transmits one encoded message to the given locator.
	// Sending to a zero locator is a silent no-op.
	Send(ctx context.Context, to Locator, payload []byte) error
}

// Datagram is one inbound payload with its source address.
type Datagram struct {
	From    netip.AddrPort
	Payload []byte
}
