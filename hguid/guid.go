package hguid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// VendorID identifies the middleware implementation
// in the first two octets of every GUID prefix.
//
// The value here is in the range reserved for
// implementations without an OMG-assigned ID.
var VendorID = [2]byte{0x01, 0x5e}

// Prefix is the 12-byte namespace portion of a GUID.
// Every endpoint created by one participant shares the participant's prefix.
type Prefix [12]byte

// EntityID discriminates one endpoint within a participant.
// The first three bytes are the entity key
// and the final byte is the entity kind.
type EntityID [4]byte

// GUID is the 16-byte globally unique identifier of a participant,
// writer, or reader. It is comparable and never reused
// for a different logical peer within a session.
type GUID [16]byte

// Entity kind octets.
const (
	KindWriterWithKey byte = 0x02
	KindWriterNoKey   byte = 0x03
	KindReaderNoKey   byte = 0x04
	KindReaderWithKey byte = 0x07

	// KindBuiltin is OR-ed into a kind octet
	// for protocol-internal endpoints.
	KindBuiltin byte = 0xc0
)

// NewPrefix returns a freshly generated prefix:
// the vendor ID followed by ten bytes of UUID-sourced entropy.
func NewPrefix() Prefix {
	u := uuid.New()

	var p Prefix
	p[0] = VendorID[0]
	p[1] = VendorID[1]
	copy(p[2:], u[:10])
	return p
}

// NewEntityID builds an entity ID from a 24-bit key and a kind octet.
// Key bits above the low 24 are discarded.
func NewEntityID(key uint32, kind byte) EntityID {
	return EntityID{
		byte(key >> 16),
		byte(key >> 8),
		byte(key),
		kind,
	}
}

// Kind returns the entity kind octet.
func (e EntityID) Kind() byte {
	return e[3]
}

// IsWriter reports whether the entity kind denotes a writer.
func (e EntityID) IsWriter() bool {
	k := e[3] &^ KindBuiltin
	return k == KindWriterWithKey || k == KindWriterNoKey
}

// IsReader reports whether the entity kind denotes a reader.
func (e EntityID) IsReader() bool {
	k := e[3] &^ KindBuiltin
	return k == KindReaderNoKey || k == KindReaderWithKey
}

// New composes a GUID from a prefix and an entity ID.
func New(p Prefix, e EntityID) GUID {
	var g GUID
	copy(g[:12], p[:])
	copy(g[12:], e[:])
	return g
}

// Prefix returns the namespace portion of g.
func (g GUID) Prefix() Prefix {
	var p Prefix
	copy(p[:], g[:12])
	return p
}

// EntityID returns the entity discriminator portion of g.
func (g GUID) EntityID() EntityID {
	var e EntityID
	copy(e[:], g[12:])
	return e
}

// IsZero reports whether g is the all-zero GUID,
// which is never a valid peer identity.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

func (p Prefix) String() string {
	return hex.EncodeToString(p[:])
}

func (e EntityID) String() string {
	return hex.EncodeToString(e[:])
}

func (g GUID) String() string {
	return hex.EncodeToString(g[:12]) + "." + hex.EncodeToString(g[12:])
}
