package hwire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
)

// Data carries one sample from a writer.
type Data struct {
	ReaderID hguid.EntityID
	WriterID hguid.EntityID
	Seq      hseq.Number
	Payload  []byte
}

func (d *Data) ID() SubmessageID { return IDData }

func (d *Data) flags() byte { return 0 }

func (d *Data) encodeBody(buf *bytes.Buffer) {
	putEntity(buf, d.ReaderID)
	putEntity(buf, d.WriterID)
	putSeq(buf, d.Seq)
	buf.Write(d.Payload)
}

func (d *Data) decodeBody(_ byte, body []byte) error {
	if len(body) < 16 {
		return fmt.Errorf("DATA body needs 16 bytes, have %d", len(body))
	}
	copy(d.ReaderID[:], body[:4])
	copy(d.WriterID[:], body[4:8])
	d.Seq = getSeq(body[8:16])
	d.Payload = append([]byte(nil), body[16:]...)
	return nil
}

// Heartbeat announces the range of sequence numbers
// a writer currently has available.
type Heartbeat struct {
	ReaderID hguid.EntityID
	WriterID hguid.EntityID
	First    hseq.Number
	Last     hseq.Number
	Count    int32
	Final    bool
}

func (h *Heartbeat) ID() SubmessageID { return IDHeartbeat }

func (h *Heartbeat) flags() byte {
	if h.Final {
		return FlagFinal
	}
	return 0
}

func (h *Heartbeat) encodeBody(buf *bytes.Buffer) {
	putEntity(buf, h.ReaderID)
	putEntity(buf, h.WriterID)
	putSeq(buf, h.First)
	putSeq(buf, h.Last)

	var cb [4]byte
	binary.LittleEndian.PutUint32(cb[:], uint32(h.Count))
	buf.Write(cb[:])
}

func (h *Heartbeat) decodeBody(flags byte, body []byte) error {
	if len(body) < 28 {
		return fmt.Errorf("HEARTBEAT body needs 28 bytes, have %d", len(body))
	}
	copy(h.ReaderID[:], body[:4])
	copy(h.WriterID[:], body[4:8])
	h.First = getSeq(body[8:16])
	h.Last = getSeq(body[16:24])
	h.Count = int32(binary.LittleEndian.Uint32(body[24:28]))
	h.Final = flags&FlagFinal != 0
	return nil
}

// AckNack acknowledges everything below its set's base
// and requests the sequences in the set.
type AckNack struct {
	ReaderID hguid.EntityID
	WriterID hguid.EntityID
	Set      *hseq.NumberSet
	Count    int32
	Final    bool
}

func (a *AckNack) ID() SubmessageID { return IDAckNack }

func (a *AckNack) flags() byte {
	if a.Final {
		return FlagFinal
	}
	return 0
}

func (a *AckNack) encodeBody(buf *bytes.Buffer) {
	putEntity(buf, a.ReaderID)
	putEntity(buf, a.WriterID)
	putNumberSet(buf, a.Set)

	var cb [4]byte
	binary.LittleEndian.PutUint32(cb[:], uint32(a.Count))
	buf.Write(cb[:])
}

func (a *AckNack) decodeBody(flags byte, body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("ACKNACK body needs 8 bytes, have %d", len(body))
	}
	copy(a.ReaderID[:], body[:4])
	copy(a.WriterID[:], body[4:8])

	set, n, err := getNumberSet(body[8:])
	if err != nil {
		return fmt.Errorf("bad ACKNACK sequence number set: %w", err)
	}
	a.Set = set

	rest := body[8+n:]
	if len(rest) < 4 {
		return fmt.Errorf("ACKNACK missing count, %d trailing bytes", len(rest))
	}
	a.Count = int32(binary.LittleEndian.Uint32(rest[:4]))
	a.Final = flags&FlagFinal != 0
	return nil
}

// Gap tells a reader that the sequences from Start
// through the set's base (exclusive), plus the set's contents,
// will never be delivered.
type Gap struct {
	ReaderID hguid.EntityID
	WriterID hguid.EntityID
	Start    hseq.Number
	Set      *hseq.NumberSet
}

func (g *Gap) ID() SubmessageID { return IDGap }

func (g *Gap) flags() byte { return 0 }

func (g *Gap) encodeBody(buf *bytes.Buffer) {
	putEntity(buf, g.ReaderID)
	putEntity(buf, g.WriterID)
	putSeq(buf, g.Start)
	putNumberSet(buf, g.Set)
}

func (g *Gap) decodeBody(_ byte, body []byte) error {
	if len(body) < 16 {
		return fmt.Errorf("GAP body needs 16 bytes, have %d", len(body))
	}
	copy(g.ReaderID[:], body[:4])
	copy(g.WriterID[:], body[4:8])
	g.Start = getSeq(body[8:16])

	set, _, err := getNumberSet(body[16:])
	if err != nil {
		return fmt.Errorf("bad GAP sequence number set: %w", err)
	}
	g.Set = set
	return nil
}
