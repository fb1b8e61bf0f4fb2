package hwire

import (
	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
)

// Events are decoded submessages paired with the full source GUID,
// which a submessage alone cannot carry
// (the prefix lives in the message header).
// The decoder produces events; the endpoints consume them.
//
// The Dest field on each event is the destination entity within
// the receiving participant. A zero Dest addresses every endpoint
// of the matching kind, mirroring ENTITYID_UNKNOWN on the wire.

// HeartbeatEvent is an inbound HEARTBEAT attributed to its writer.
type HeartbeatEvent struct {
	Writer hguid.GUID
	Dest   hguid.EntityID
	First  hseq.Number
	Last   hseq.Number
	Count  int32
	Final  bool
}

// AckNackEvent is an inbound ACKNACK attributed to its reader.
type AckNackEvent struct {
	Reader hguid.GUID
	Dest   hguid.EntityID
	Set    *hseq.NumberSet
	Count  int32
	Final  bool
}

// DataEvent is an inbound sample attributed to its writer.
type DataEvent struct {
	Writer  hguid.GUID
	Dest    hguid.EntityID
	Seq     hseq.Number
	Payload []byte
}

// GapEvent is an inbound GAP attributed to its writer.
type GapEvent struct {
	Writer hguid.GUID
	Dest   hguid.EntityID
	Start  hseq.Number
	Set    *hseq.NumberSet
}

// EventsFromMessage attributes every submessage in m to its source GUID,
// fanning the message out into typed events.
func EventsFromMessage(m *Message) []any {
	events := make([]any, 0, len(m.Subs))

	for _, sub := range m.Subs {
		switch s := sub.(type) {
		case *Data:
			events = append(events, DataEvent{
				Writer:  hguid.New(m.Prefix, s.WriterID),
				Dest:    s.ReaderID,
				Seq:     s.Seq,
				Payload: s.Payload,
			})
		case *Heartbeat:
			events = append(events, HeartbeatEvent{
				Writer: hguid.New(m.Prefix, s.WriterID),
				Dest:   s.ReaderID,
				First:  s.First,
				Last:   s.Last,
				Count:  s.Count,
				Final:  s.Final,
			})
		case *AckNack:
			events = append(events, AckNackEvent{
				Reader: hguid.New(m.Prefix, s.ReaderID),
				Dest:   s.WriterID,
				Set:    s.Set,
				Count:  s.Count,
				Final:  s.Final,
			})
		case *Gap:
			events = append(events, GapEvent{
				Writer: hguid.New(m.Prefix, s.WriterID),
				Dest:   s.ReaderID,
				Start:  s.Start,
				Set:    s.Set,
			})
		}
	}

	return events
}
