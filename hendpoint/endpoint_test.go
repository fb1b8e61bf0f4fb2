package hendpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/heron-dds/heron/hdisc"
	"github.com/heron-dds/heron/hendpoint"
	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hpubsub"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/hwire"
	"github.com/heron-dds/heron/internal/htest"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// dispatchTo wires a loopback locator to an endpoint pair:
// every message sent to loc is decoded and routed
// the way a receive loop would route it.
func dispatchTo(
	ctx context.Context,
	t *testing.T,
	lb *htransport.Loopback,
	loc htransport.Locator,
	w *hendpoint.StatefulWriter,
	r *hendpoint.StatefulReader,
) {
	t.Helper()

	lb.Handle(loc, func(payload []byte) {
		var m hwire.Message
		if err := m.Unmarshal(payload); err != nil {
			t.Errorf("failed to decode message: %v", err)
			return
		}
		// The handler runs off the test goroutine,
		// so failures report via Errorf rather than require.
		for _, e := range hwire.EventsFromMessage(&m) {
			switch e := e.(type) {
			case hwire.DataEvent:
				if r != nil {
					if err := r.HandleData(e); err != nil {
						t.Errorf("HandleData: %v", err)
					}
				}
			case hwire.HeartbeatEvent:
				if r != nil {
					if err := r.HandleHeartbeat(ctx, e); err != nil {
						t.Errorf("HandleHeartbeat: %v", err)
					}
				}
			case hwire.GapEvent:
				if r != nil {
					r.HandleGap(e)
				}
			case hwire.AckNackEvent:
				if w != nil {
					if err := w.HandleAckNack(ctx, e); err != nil {
						t.Errorf("HandleAckNack: %v", err)
					}
				}
			}
		}
	})
}

// A reader matched after samples were written misses them on the wire.
// The heartbeat/acknack exchange repairs the loss from writer history.
func TestEndpoints_lateReaderCatchesUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slogt.New(t)
	lb := htransport.NewLoopback()

	writerGUID := endpointGUID(0x21, hguid.KindWriterWithKey)
	readerGUID := endpointGUID(0x22, hguid.KindReaderWithKey)
	writerLoc := udpLocator(t, "127.0.0.1:7701")
	readerLoc := udpLocator(t, "127.0.0.1:7702")

	writerDisc := hpubsub.NewFeed[hdisc.Event]()
	writer := hendpoint.NewStatefulWriter(ctx, log, hendpoint.WriterConfig{
		GUID:            writerGUID,
		HeartbeatPeriod: 5 * time.Millisecond,
		Sender:          lb,
		Discovery:       writerDisc,
	})
	t.Cleanup(writer.Wait)

	readerDisc := hpubsub.NewFeed[hdisc.Event]()
	reader := hendpoint.NewStatefulReader(ctx, log, hendpoint.ReaderConfig{
		GUID:            readerGUID,
		AckNackInterval: time.Millisecond,
		Sender:          lb,
		Discovery:       readerDisc,
	})
	t.Cleanup(reader.Wait)

	dispatchTo(ctx, t, lb, writerLoc, writer, nil)
	dispatchTo(ctx, t, lb, readerLoc, nil, reader)

	// Written before matching: the reader never sees these directly.
	for _, p := range []string{"alpha", "beta", "gamma"} {
		_, err := writer.Write(ctx, []byte(p))
		require.NoError(t, err)
	}

	writerDisc.Post(hdisc.Event{
		Kind: hdisc.AddReader, GUID: readerGUID, Locator: readerLoc,
	})
	readerDisc.Post(hdisc.Event{
		Kind: hdisc.AddWriter, GUID: writerGUID, Locator: writerLoc,
	})

	// Heartbeats announce [1,3], the reader nacks,
	// history retransmits, and both sides converge.
	require.Eventually(t, func() bool {
		return reader.Synchronized()
	}, htest.ScaledTimeout, time.Millisecond)

	require.Eventually(t, func() bool {
		s := writer.Stats()
		return s.AllSynchronized && s.SlowestAcked == hseq.Number(3)
	}, htest.ScaledTimeout, time.Millisecond)
}

// Live traffic: samples written after matching arrive directly,
// and the periodic heartbeat confirms synchronization.
func TestEndpoints_liveTrafficStaysSynchronized(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slogt.New(t)
	lb := htransport.NewLoopback()

	writerGUID := endpointGUID(0x23, hguid.KindWriterWithKey)
	readerGUID := endpointGUID(0x24, hguid.KindReaderWithKey)
	writerLoc := udpLocator(t, "127.0.0.1:7703")
	readerLoc := udpLocator(t, "127.0.0.1:7704")

	writerDisc := hpubsub.NewFeed[hdisc.Event]()
	writer := hendpoint.NewStatefulWriter(ctx, log, hendpoint.WriterConfig{
		GUID:            writerGUID,
		HeartbeatPeriod: 5 * time.Millisecond,
		Sender:          lb,
		Discovery:       writerDisc,
	})
	t.Cleanup(writer.Wait)

	rec := newMemRecorder()
	readerDisc := hpubsub.NewFeed[hdisc.Event]()
	reader := hendpoint.NewStatefulReader(ctx, log, hendpoint.ReaderConfig{
		GUID:            readerGUID,
		AckNackInterval: time.Millisecond,
		Sender:          lb,
		Discovery:       readerDisc,
		Recorder:        rec,
	})
	t.Cleanup(reader.Wait)

	dispatchTo(ctx, t, lb, writerLoc, writer, nil)
	dispatchTo(ctx, t, lb, readerLoc, nil, reader)

	writerDisc.Post(hdisc.Event{
		Kind: hdisc.AddReader, GUID: readerGUID, Locator: readerLoc,
	})
	readerDisc.Post(hdisc.Event{
		Kind: hdisc.AddWriter, GUID: writerGUID, Locator: writerLoc,
	})
	require.Eventually(t, func() bool {
		return writer.Stats().MatchedReaders == 1
	}, htest.ScaledTimeout, time.Millisecond)

	for i := 0; i < 10; i++ {
		_, err := writer.Write(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return reader.Synchronized()
	}, htest.ScaledTimeout, time.Millisecond)

	// Every sample reached the recorder exactly once.
	for seq := hseq.Number(1); seq <= 10; seq++ {
		p, ok := rec.get(seq)
		require.True(t, ok, "sample %d not recorded", seq)
		require.Equal(t, []byte{byte(seq - 1)}, p)
	}
}
