// Package htransport contains the locator type and the datagram senders
// that carry encoded messages between endpoints.
//
// Nothing in this package retransmits or acknowledges;
// reliability lives entirely above the transport seam.
package htransport

import "net/netip"

// LocatorKind discriminates the transport a locator addresses.
type LocatorKind uint8

const (
	// Invalid zero value.
	_ LocatorKind = iota

	// KindUDPv4 addresses a plain UDP socket.
	KindUDPv4

	// KindQUIC addresses a QUIC endpoint;
	// messages travel as QUIC datagrams.
	KindQUIC
)

func (k LocatorKind) String() string {
	switch k {
	case KindUDPv4:
		return "udpv4"
	case KindQUIC:
		return "quic"
	default:
		return "invalid"
	}
}

// Locator is a destination address for outbound messages.
// The zero Locator addresses nothing and is silently skipped by senders.
type Locator struct {
	Kind LocatorKind
	Addr netip.AddrPort
}

// UDPv4 returns a UDP locator for the given address.
func UDPv4(addr netip.AddrPort) Locator {
	return Locator{Kind: KindUDPv4, Addr: addr}
}

// QUIC returns a QUIC locator for the given address.
func QUIC(addr netip.AddrPort) Locator {
	return Locator{Kind: KindQUIC, Addr: addr}
}

// IsZero reports whether l addresses nothing.
func (l Locator) IsZero() bool {
	return l.Kind == 0 || !l.Addr.IsValid()
}

func (l Locator) String() string {
	if l.IsZero() {
		return "none"
	}
	return l.Kind.String() + "://" + l.Addr.String()
}
