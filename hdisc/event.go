// Package hdisc defines the discovery events
// that populate the matched-peer registries.
//
// The discovery protocol itself (SPDP/SEDP) lives outside this module;
// whatever runs it posts these events onto a feed
// the endpoint kernels subscribe to.
package hdisc

import (
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/htransport"
)

// DefaultLease is the lease applied when an announcement
// carries no lease duration of its own.
const DefaultLease = 10 * time.Second

// EventKind discriminates a discovery event.
type EventKind uint8

const (
	// Invalid zero value.
	_ EventKind = iota

	// AddReader announces a matched remote reader to writer endpoints.
	AddReader

	// RemoveReader announces a remote reader's departure.
	RemoveReader

	// AddWriter announces a matched remote writer to reader endpoints.
	AddWriter

	// RemoveWriter announces a remote writer's departure.
	RemoveWriter
)

func (k EventKind) String() string {
	switch k {
	case AddReader:
		return "add_reader"
	case RemoveReader:
		return "remove_reader"
	case AddWriter:
		return "add_writer"
	case RemoveWriter:
		return "remove_writer"
	default:
		return "invalid"
	}
}

// Event is one discovery change.
// Locator and Lease are meaningful only for the Add kinds;
// a zero Lease falls back to [DefaultLease].
type Event struct {
	Kind    EventKind
	GUID    hguid.GUID
	Locator htransport.Locator
	Lease   time.Duration
}

// EffectiveLease returns the event's lease, defaulted if absent.
func (e Event) EffectiveLease() time.Duration {
	if e.Lease <= 0 {
		return DefaultLease
	}
	return e.Lease
}
