package hendpoint_test

import (
	"context"
	"net/netip"
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

func endpointGUID(n byte, kind byte) hguid.GUID {
	p := hguid.Prefix{0x01, 0x5e, n}
	return hguid.New(p, hguid.NewEntityID(uint32(n), kind))
}

func udpLocator(t *testing.T, s string) htransport.Locator {
	t.Helper()
	return htransport.UDPv4(netip.MustParseAddrPort(s))
}

// captureAt registers a handler on lb that decodes every payload
// sent to loc and pushes its events onto the returned channel.
func captureAt(
	t *testing.T, lb *htransport.Loopback, loc htransport.Locator,
) <-chan any {
	t.Helper()

	out := make(chan any, 64)
	lb.Handle(loc, func(payload []byte) {
		var m hwire.Message
		if err := m.Unmarshal(payload); err != nil {
			t.Errorf("failed to decode captured message: %v", err)
			return
		}
		for _, e := range hwire.EventsFromMessage(&m) {
			out <- e
		}
	})
	return out
}

type writerFixture struct {
	Writer *hendpoint.StatefulWriter
	Lb     *htransport.Loopback
	Disc   *hpubsub.Feed[hdisc.Event]
}

func newWriterFixture(
	t *testing.T, ctx context.Context, cfg hendpoint.WriterConfig,
) *writerFixture {
	t.Helper()

	fx := &writerFixture{
		Lb:   htransport.NewLoopback(),
		Disc: hpubsub.NewFeed[hdisc.Event](),
	}

	if cfg.GUID.IsZero() {
		cfg.GUID = endpointGUID(1, hguid.KindWriterWithKey)
	}
	cfg.Sender = fx.Lb
	cfg.Discovery = fx.Disc

	fx.Writer = hendpoint.NewStatefulWriter(ctx, slogt.New(t), cfg)
	t.Cleanup(fx.Writer.Wait)

	return fx
}

// matchReader posts an AddReader event and waits for the kernel
// to apply it.
func (fx *writerFixture) matchReader(
	t *testing.T, g hguid.GUID, loc htransport.Locator, lease time.Duration,
) {
	t.Helper()

	before := fx.Writer.Stats().MatchedReaders

	fx.Disc.Post(hdisc.Event{
		Kind: hdisc.AddReader, GUID: g, Locator: loc, Lease: lease,
	})
	fx.Disc = fx.Disc.Next

	require.Eventually(t, func() bool {
		return fx.Writer.Stats().MatchedReaders > before
	}, htest.ScaledTimeout, time.Millisecond)
}

func TestStatefulWriter_writeFansOutToReaders(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: time.Hour,
	})

	loc := udpLocator(t, "127.0.0.1:7501")
	events := captureAt(t, fx.Lb, loc)
	fx.matchReader(t, endpointGUID(2, hguid.KindReaderWithKey), loc, 0)

	seq, err := fx.Writer.Write(ctx, []byte("sample one"))
	require.NoError(t, err)
	require.Equal(t, hseq.Number(1), seq)

	e := htest.ReceiveSoon(t, events)
	data, ok := e.(hwire.DataEvent)
	require.True(t, ok, "expected DataEvent, got %T", e)
	require.Equal(t, hseq.Number(1), data.Seq)
	require.Equal(t, []byte("sample one"), data.Payload)
	require.Equal(t, fx.Writer.GUID(), data.Writer)

	seq, err = fx.Writer.Write(ctx, []byte("sample two"))
	require.NoError(t, err)
	require.Equal(t, hseq.Number(2), seq)
}

func TestStatefulWriter_heartbeatsLaggingReader(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: 5 * time.Millisecond,
	})

	loc := udpLocator(t, "127.0.0.1:7502")
	events := captureAt(t, fx.Lb, loc)
	fx.matchReader(t, endpointGUID(3, hguid.KindReaderWithKey), loc, 0)

	_, err := fx.Writer.Write(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = fx.Writer.Write(ctx, []byte("b"))
	require.NoError(t, err)

	// Heartbeats repeat while the reader stays behind.
	// Drain data samples and early heartbeats until one
	// announces the full range.
	deadline := time.After(htest.ScaledTimeout)
	for {
		select {
		case e := <-events:
			hb, ok := e.(hwire.HeartbeatEvent)
			if !ok || hb.Last < 2 {
				continue
			}
			require.Equal(t, hseq.Number(1), hb.First)
			require.Equal(t, hseq.Number(2), hb.Last)
			require.Positive(t, hb.Count)
			require.Equal(t, fx.Writer.GUID(), hb.Writer)
			return
		case <-deadline:
			t.Fatal("timed out waiting for a heartbeat")
		}
	}
}

func TestStatefulWriter_ackNackTriggersRetransmission(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: time.Hour,
	})

	// Samples written before the reader matches are lost to it.
	for _, p := range []string{"one", "two", "three"} {
		_, err := fx.Writer.Write(ctx, []byte(p))
		require.NoError(t, err)
	}

	reader := endpointGUID(4, hguid.KindReaderWithKey)
	loc := udpLocator(t, "127.0.0.1:7503")
	events := captureAt(t, fx.Lb, loc)
	fx.matchReader(t, reader, loc, 0)

	set := hseq.NewNumberSet(1)
	set.InsertRange(1, 3)
	require.NoError(t, fx.Writer.HandleAckNack(ctx, hwire.AckNackEvent{
		Reader: reader,
		Set:    set,
		Count:  1,
	}))

	for want := hseq.Number(1); want <= 3; want++ {
		e := htest.ReceiveSoon(t, events)
		data, ok := e.(hwire.DataEvent)
		require.True(t, ok, "expected DataEvent, got %T", e)
		require.Equal(t, want, data.Seq)
	}
}

func TestStatefulWriter_ackNackFromUnknownReaderDropped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: time.Hour,
	})

	_, err := fx.Writer.Write(ctx, []byte("x"))
	require.NoError(t, err)

	loc := udpLocator(t, "127.0.0.1:7504")
	events := captureAt(t, fx.Lb, loc)

	set := hseq.NewNumberSet(1)
	set.Insert(1)
	require.NoError(t, fx.Writer.HandleAckNack(ctx, hwire.AckNackEvent{
		Reader: endpointGUID(5, hguid.KindReaderWithKey),
		Set:    set,
		Count:  1,
	}))

	htest.NotSending(t, events)
}

func TestStatefulWriter_ackNackWithoutSetIsNoop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: time.Hour,
	})

	reader := endpointGUID(9, hguid.KindReaderWithKey)
	loc := udpLocator(t, "127.0.0.1:7508")
	events := captureAt(t, fx.Lb, loc)
	fx.matchReader(t, reader, loc, 0)

	_, err := fx.Writer.Write(ctx, []byte("x"))
	require.NoError(t, err)
	_ = htest.ReceiveSoon(t, events)

	// No sequence number set: nothing to apply, nothing sent.
	require.NoError(t, fx.Writer.HandleAckNack(ctx, hwire.AckNackEvent{
		Reader: reader,
		Count:  1,
	}))

	htest.NotSending(t, events)
	require.Zero(t, fx.Writer.Stats().SlowestAcked)
}

func TestStatefulWriter_gapForEvictedHistory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: time.Hour,
		HistoryDepth:    2,
	})

	// Depth 2: sequences 1 and 2 are evicted by the time 4 is written.
	for _, p := range []string{"one", "two", "three", "four"} {
		_, err := fx.Writer.Write(ctx, []byte(p))
		require.NoError(t, err)
	}

	reader := endpointGUID(6, hguid.KindReaderWithKey)
	loc := udpLocator(t, "127.0.0.1:7505")
	events := captureAt(t, fx.Lb, loc)
	fx.matchReader(t, reader, loc, 0)

	set := hseq.NewNumberSet(1)
	set.InsertRange(1, 4)
	require.NoError(t, fx.Writer.HandleAckNack(ctx, hwire.AckNackEvent{
		Reader: reader,
		Set:    set,
		Count:  1,
	}))

	var gotData []hseq.Number
	var gotGap *hwire.GapEvent
	for i := 0; i < 3; i++ {
		switch e := htest.ReceiveSoon(t, events).(type) {
		case hwire.DataEvent:
			gotData = append(gotData, e.Seq)
		case hwire.GapEvent:
			g := e
			gotGap = &g
		default:
			t.Fatalf("unexpected event %T", e)
		}
	}

	require.Equal(t, []hseq.Number{3, 4}, gotData)
	require.NotNil(t, gotGap, "expected a GAP for the evicted sequences")
	require.Equal(t, hseq.Number(1), gotGap.Start)
	require.Equal(t, hseq.Number(3), gotGap.Set.Base())
}

func TestStatefulWriter_slowestAckGatesHistory(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod: 5 * time.Millisecond,
	})

	reader := endpointGUID(7, hguid.KindReaderWithKey)
	loc := udpLocator(t, "127.0.0.1:7506")
	_ = captureAt(t, fx.Lb, loc)
	fx.matchReader(t, reader, loc, 0)

	for i := 0; i < 5; i++ {
		_, err := fx.Writer.Write(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	// Pure acknowledgement: everything below 4 is received.
	require.NoError(t, fx.Writer.HandleAckNack(ctx, hwire.AckNackEvent{
		Reader: reader,
		Set:    hseq.NewNumberSet(4),
		Count:  1,
	}))
	require.Equal(t, hseq.Number(3), fx.Writer.Stats().SlowestAcked)

	// The kernel drops acknowledged history on its next tick.
	require.Eventually(t, func() bool {
		return fx.Writer.Stats().HistoryFirst == 4
	}, htest.ScaledTimeout, time.Millisecond)
}

func TestStatefulWriter_expiredReaderEvicted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{
		HeartbeatPeriod:  time.Hour,
		LeaseCheckPeriod: 5 * time.Millisecond,
	})

	// The lease outlives the match assertion but not the test.
	loc := udpLocator(t, "127.0.0.1:7507")
	fx.matchReader(t, endpointGUID(8, hguid.KindReaderWithKey), loc, 25*time.Millisecond)

	require.Eventually(t, func() bool {
		return fx.Writer.Stats().MatchedReaders == 0
	}, htest.ScaledTimeout, time.Millisecond)
}

func TestStatefulWriter_stopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fx := newWriterFixture(t, ctx, hendpoint.WriterConfig{})

	cancel()
	fx.Writer.Wait()
}
