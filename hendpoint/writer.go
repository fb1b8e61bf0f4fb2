package hendpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heron-dds/heron/hdisc"
	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hhist"
	"github.com/heron-dds/heron/hmetrics"
	"github.com/heron-dds/heron/hpubsub"
	"github.com/heron-dds/heron/hrel"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/hwire"
)

// WriterConfig is the configuration passed to [NewStatefulWriter].
type WriterConfig struct {
	// The endpoint's own identity.
	GUID hguid.GUID

	// How often unsynchronized readers are heartbeated.
	HeartbeatPeriod time.Duration

	// How often expired leases are collected.
	LeaseCheckPeriod time.Duration

	// How many samples history retains for retransmission.
	HistoryDepth int

	// Where outbound messages go.
	Sender htransport.Sender

	// Discovery change feed; the kernel applies
	// AddReader/RemoveReader events and ignores the writer kinds.
	Discovery *hpubsub.Feed[hdisc.Event]
}

// StatefulWriter is a reliable writer endpoint:
// it assigns sequence numbers, fans samples out to matched readers,
// heartbeats the ones that are behind,
// and retransmits whatever ACKNACKs request.
type StatefulWriter struct {
	log *slog.Logger

	guid hguid.GUID

	readers *hrel.ReaderRegistry
	hist    *hhist.Cache

	sender htransport.Sender

	hbPeriod    time.Duration
	leasePeriod time.Duration

	hbCount atomic.Int32

	mainLoopDone chan struct{}
}

// NewStatefulWriter returns a running writer endpoint.
// The kernel goroutine stops when ctx is canceled;
// call [*StatefulWriter.Wait] afterwards.
func NewStatefulWriter(
	ctx context.Context,
	log *slog.Logger,
	cfg WriterConfig,
) *StatefulWriter {
	hbPeriod := cfg.HeartbeatPeriod
	if hbPeriod <= 0 {
		hbPeriod = 100 * time.Millisecond
	}
	leasePeriod := cfg.LeaseCheckPeriod
	if leasePeriod <= 0 {
		leasePeriod = time.Second
	}

	w := &StatefulWriter{
		log: log,

		guid: cfg.GUID,

		readers: hrel.NewReaderRegistry(),
		hist:    hhist.New(cfg.HistoryDepth),

		sender: cfg.Sender,

		hbPeriod:    hbPeriod,
		leasePeriod: leasePeriod,

		mainLoopDone: make(chan struct{}),
	}

	go w.mainLoop(ctx, cfg.Discovery)

	return w
}

// GUID returns the endpoint's identity.
func (w *StatefulWriter) GUID() hguid.GUID {
	return w.guid
}

// Wait blocks until the kernel goroutine has stopped.
func (w *StatefulWriter) Wait() {
	<-w.mainLoopDone
}

func (w *StatefulWriter) mainLoop(
	ctx context.Context,
	discovery *hpubsub.Feed[hdisc.Event],
) {
	defer close(w.mainLoopDone)

	hbTicker := time.NewTicker(w.hbPeriod)
	defer hbTicker.Stop()

	gcTicker := time.NewTicker(w.leasePeriod)
	defer gcTicker.Stop()

	for {
		var discoveryReady <-chan struct{}
		if discovery != nil {
			discoveryReady = discovery.Ready
		}

		select {
		case <-ctx.Done():
			w.log.Info(
				"Writer stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)
			return

		case <-hbTicker.C:
			w.heartbeatTick(ctx)

		case <-gcTicker.C:
			w.collectExpired()

		case <-discoveryReady:
			w.applyDiscovery(discovery.Val)
			discovery = discovery.Next
		}
	}
}

func (w *StatefulWriter) applyDiscovery(e hdisc.Event) {
	switch e.Kind {
	case hdisc.AddReader:
		w.readers.AddReader(e.GUID, e.Locator, e.EffectiveLease())
		w.log.Debug("Matched reader", "reader", e.GUID, "locator", e.Locator)
	case hdisc.RemoveReader:
		if w.readers.Remove(e.GUID) {
			w.log.Debug("Reader departed", "reader", e.GUID)
		}
	default:
		// Writer kinds are for reader endpoints.
	}

	hmetrics.MatchedReaders.Set(float64(w.readers.Len()))
}

// heartbeatTick announces the available range
// to every reader owed a heartbeat.
// Emission is throttled entirely while all readers are synchronized.
func (w *StatefulWriter) heartbeatTick(ctx context.Context) {
	// Drop history the slowest reader can no longer request.
	if _, acked, ok := w.readers.Slowest(); ok {
		w.hist.DropBelow(acked.Next())
	}

	if w.readers.AllSynchronized() {
		return
	}

	due := w.readers.NeedingHeartbeat(w.hbPeriod)
	if len(due) == 0 {
		return
	}

	first, last := w.hist.Range()
	count := w.hbCount.Add(1)

	sub := &hwire.Heartbeat{
		WriterID: w.guid.EntityID(),
		First:    first,
		Last:     last,
		Count:    count,
	}

	raw, err := (&hwire.Message{
		Prefix: w.guid.Prefix(),
		Subs:   []hwire.Submessage{sub},
	}).Marshal()
	if err != nil {
		w.log.Warn("Failed to encode heartbeat", "err", err)
		return
	}

	for _, d := range due {
		if err := w.sender.Send(ctx, d.Locator, raw); err != nil {
			w.log.Info(
				"Failed to send heartbeat",
				"reader", d.GUID, "err", err,
			)
			continue
		}

		if p, ok := w.readers.Get(d.GUID); ok {
			p.MarkHeartbeatSent()
		}
		hmetrics.HeartbeatsSent.Inc()
	}
}

func (w *StatefulWriter) collectExpired() {
	n := w.readers.CleanupExpired()
	if n > 0 {
		w.log.Info("Evicted expired readers", "count", n)
		hmetrics.LeasesExpired.Add(float64(n))
		hmetrics.MatchedReaders.Set(float64(w.readers.Len()))
	}
}

// Write publishes one sample:
// history assigns the sequence number,
// and the sample fans out to every matched reader's locator.
//
// Write never blocks on protocol state;
// it runs concurrently with the kernel and with inbound ACKNACKs.
func (w *StatefulWriter) Write(ctx context.Context, payload []byte) (hseq.Number, error) {
	seq, _ := w.hist.Add(payload)

	sub := &hwire.Data{
		WriterID: w.guid.EntityID(),
		Seq:      seq,
		Payload:  payload,
	}

	raw, err := (&hwire.Message{
		Prefix: w.guid.Prefix(),
		Subs:   []hwire.Submessage{sub},
	}).Marshal()
	if err != nil {
		return seq, fmt.Errorf("failed to encode sample %d: %w", seq, err)
	}

	for _, loc := range w.readers.AllLocators() {
		if err := w.sender.Send(ctx, loc, raw); err != nil {
			// Reliability comes from heartbeat/acknack repair,
			// not from the first transmission.
			w.log.Info("Failed to send sample", "seq", seq, "err", err)
		}
	}

	hmetrics.DataSent.Inc()
	return seq, nil
}

// HandleAckNack processes one inbound ACKNACK:
// acknowledgement bookkeeping, retransmission of requested samples
// still in history, and GAPs for requested samples history has dropped.
//
// ACKNACKs from unmatched readers and stale replays are dropped silently.
func (w *StatefulWriter) HandleAckNack(ctx context.Context, e hwire.AckNackEvent) error {
	hmetrics.AckNacksReceived.Inc()

	if e.Set == nil {
		// An ACKNACK without a sequence number set carries
		// no watermark and nothing to request.
		return nil
	}

	hasGaps := !e.Set.IsEmpty()

	loc, ok := w.readers.OnAckNack(e.Reader, e.Set.Base(), hasGaps, e.Count)
	if !ok || !hasGaps {
		return nil
	}

	var subs []hwire.Submessage

	var dropped []hseq.Number
	for seq := range e.Set.Numbers() {
		payload, ok := w.hist.Get(seq)
		if !ok {
			dropped = append(dropped, seq)
			continue
		}

		subs = append(subs, &hwire.Data{
			ReaderID: e.Reader.EntityID(),
			WriterID: w.guid.EntityID(),
			Seq:      seq,
			Payload:  payload,
		})
	}

	if len(dropped) > 0 {
		// Depth eviction beat the reader to these sequences.
		// They will never be delivered; say so.
		gapSet := hseq.NewNumberSet(dropped[len(dropped)-1].Next())
		subs = append(subs, &hwire.Gap{
			ReaderID: e.Reader.EntityID(),
			WriterID: w.guid.EntityID(),
			Start:    dropped[0],
			Set:      gapSet,
		})
	}

	if len(subs) == 0 {
		return nil
	}

	raw, err := (&hwire.Message{
		Prefix: w.guid.Prefix(),
		Subs:   subs,
	}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode retransmission: %w", err)
	}

	if err := w.sender.Send(ctx, loc, raw); err != nil {
		return fmt.Errorf("failed to send retransmission: %w", err)
	}

	retransmitted := len(subs)
	if len(dropped) > 0 {
		retransmitted--
		hmetrics.GapsSent.Inc()
	}
	hmetrics.Retransmissions.Add(float64(retransmitted))

	return nil
}

// WriterStats is a read-only snapshot for diagnostics.
type WriterStats struct {
	GUID            string      `json:"guid"`
	MatchedReaders  int         `json:"matched_readers"`
	AllSynchronized bool        `json:"all_synchronized"`
	SlowestAcked    hseq.Number `json:"slowest_acked"`
	HistoryFirst    hseq.Number `json:"history_first"`
	HistoryLast     hseq.Number `json:"history_last"`
}

// Stats snapshots the endpoint for diagnostics.
func (w *StatefulWriter) Stats() WriterStats {
	s := WriterStats{
		GUID:            w.guid.String(),
		MatchedReaders:  w.readers.Len(),
		AllSynchronized: w.readers.AllSynchronized(),
	}
	if _, acked, ok := w.readers.Slowest(); ok {
		s.SlowestAcked = acked
	}
	s.HistoryFirst, s.HistoryLast = w.hist.Range()
	return s
}
