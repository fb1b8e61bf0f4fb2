// Package hwire encodes and decodes the RTPS control and data submessages
// the reliable delivery engine exchanges: DATA, HEARTBEAT, ACKNACK, GAP.
//
// The codec is deliberately tolerant on input:
// unknown submessage IDs are skipped, truncated input returns
// a wrapped error, and nothing in this package panics on wire data.
package hwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
)

// Protocol magic and version, leading every message.
var (
	protocolMagic = [4]byte{'R', 'T', 'P', 'S'}

	protocolVersion = [2]byte{2, 4}
)

// SubmessageID discriminates a submessage within a message.
type SubmessageID byte

const (
	IDAckNack   SubmessageID = 0x06
	IDHeartbeat SubmessageID = 0x07
	IDGap       SubmessageID = 0x08
	IDData      SubmessageID = 0x15
)

// Submessage flag bits.
const (
	// flagLittleEndian is always set; this codec only emits little endian.
	flagLittleEndian byte = 0x01

	// FlagFinal on a HEARTBEAT means the writer does not require a response;
	// on an ACKNACK it means the reader believes itself fully synchronized.
	FlagFinal byte = 0x02
)

// Submessage is one encoded unit within a [Message].
// The set of implementations in this package is closed.
type Submessage interface {
	ID() SubmessageID

	flags() byte
	encodeBody(buf *bytes.Buffer)
	decodeBody(flags byte, body []byte) error
}

// Message is one datagram's worth of submessages
// under a single sender prefix.
type Message struct {
	Prefix hguid.Prefix
	Subs   []Submessage
}

const headerLen = 4 + 2 + 2 + 12

// Encode writes the message to w.
func (m *Message) Encode(w io.Writer) error {
	var buf bytes.Buffer

	buf.Write(protocolMagic[:])
	buf.Write(protocolVersion[:])
	buf.Write(hguid.VendorID[:])
	buf.Write(m.Prefix[:])

	var body bytes.Buffer
	for _, sub := range m.Subs {
		body.Reset()
		sub.encodeBody(&body)

		if body.Len() > (1 << 16) {
			return fmt.Errorf(
				"submessage %#x body too large: %d bytes",
				byte(sub.ID()), body.Len(),
			)
		}

		buf.WriteByte(byte(sub.ID()))
		buf.WriteByte(sub.flags() | flagLittleEndian)

		var szBuf [2]byte
		binary.LittleEndian.PutUint16(szBuf[:], uint16(body.Len()))
		buf.Write(szBuf[:])
		buf.Write(body.Bytes())
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Marshal returns the encoded message as a fresh slice.
func (m *Message) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses one message from r, replacing m's contents.
// Unknown submessage IDs are skipped without error.
func (m *Message) Decode(r io.Reader) error {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return fmt.Errorf("failed to read message header: %w", err)
	}

	if !bytes.Equal(hdr[:4], protocolMagic[:]) {
		return fmt.Errorf("bad protocol magic %q", hdr[:4])
	}
	// Version and vendor are informational; dialect quirks
	// are a concern for layers above this codec.

	copy(m.Prefix[:], hdr[8:])
	m.Subs = m.Subs[:0]

	var subHdr [4]byte
	for {
		if _, err := io.ReadFull(r, subHdr[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read submessage header: %w", err)
		}

		id := SubmessageID(subHdr[0])
		flags := subHdr[1]
		bodyLen := binary.LittleEndian.Uint16(subHdr[2:])

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return fmt.Errorf(
				"failed to read %d-byte body of submessage %#x: %w",
				bodyLen, byte(id), err,
			)
		}

		var sub Submessage
		switch id {
		case IDData:
			sub = new(Data)
		case IDHeartbeat:
			sub = new(Heartbeat)
		case IDAckNack:
			sub = new(AckNack)
		case IDGap:
			sub = new(Gap)
		default:
			// Unknown submessage: skip, per protocol extensibility rules.
			continue
		}

		if err := sub.decodeBody(flags, body); err != nil {
			return fmt.Errorf(
				"failed to decode submessage %#x: %w", byte(id), err,
			)
		}
		m.Subs = append(m.Subs, sub)
	}
}

// Unmarshal parses one message from p.
func (m *Message) Unmarshal(p []byte) error {
	return m.Decode(bytes.NewReader(p))
}

// Sequence numbers travel as a signed 32-bit high part
// and unsigned 32-bit low part.

func putSeq(buf *bytes.Buffer, n hseq.Number) {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[:4], uint32(uint64(n)>>32))
	binary.LittleEndian.PutUint32(b[4:], uint32(uint64(n)))
	buf.Write(b[:])
}

func getSeq(b []byte) hseq.Number {
	high := binary.LittleEndian.Uint32(b[:4])
	low := binary.LittleEndian.Uint32(b[4:8])
	return hseq.Number(uint64(high)<<32 | uint64(low))
}

func putEntity(buf *bytes.Buffer, e hguid.EntityID) {
	buf.Write(e[:])
}

func putNumberSet(buf *bytes.Buffer, s *hseq.NumberSet) {
	putSeq(buf, s.Base())

	numBits := s.NumBits()
	var nb [4]byte
	binary.LittleEndian.PutUint32(nb[:], numBits)
	buf.Write(nb[:])

	words := s.Words()
	numWords32 := (numBits + 31) / 32
	var wb [4]byte
	for i := uint32(0); i < numWords32; i++ {
		w := words[i/2]
		if i%2 == 1 {
			w >>= 32
		}
		binary.LittleEndian.PutUint32(wb[:], uint32(w))
		buf.Write(wb[:])
	}
}

func getNumberSet(b []byte) (*hseq.NumberSet, int, error) {
	if len(b) < 12 {
		return nil, 0, fmt.Errorf(
			"sequence number set needs 12 bytes, have %d", len(b),
		)
	}

	base := getSeq(b)
	numBits := binary.LittleEndian.Uint32(b[8:12])
	if numBits > hseq.MaxSetBits {
		return nil, 0, fmt.Errorf(
			"sequence number set width %d exceeds maximum %d",
			numBits, hseq.MaxSetBits,
		)
	}

	numWords32 := (numBits + 31) / 32
	n := 12 + int(numWords32)*4
	if len(b) < n {
		return nil, 0, fmt.Errorf(
			"sequence number set needs %d bytes, have %d", n, len(b),
		)
	}

	words := make([]uint64, (numWords32+1)/2)
	for i := uint32(0); i < numWords32; i++ {
		w := uint64(binary.LittleEndian.Uint32(b[12+i*4:]))
		if i%2 == 1 {
			w <<= 32
		}
		words[i/2] |= w
	}

	return hseq.FromWords(base, numBits, words), n, nil
}
