package hendpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heron-dds/heron/hdisc"
	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hmetrics"
	"github.com/heron-dds/heron/hpubsub"
	"github.com/heron-dds/heron/hrel"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/hwire"
)

// Recorder persists delivered samples.
// [github.com/heron-dds/heron/hrecord.Recorder] satisfies it;
// a nil Recorder in the config disables persistence.
type Recorder interface {
	Record(writer hguid.GUID, seq hseq.Number, payload []byte, at time.Time) error
}

// ReaderConfig is the configuration passed to [NewStatefulReader].
type ReaderConfig struct {
	// The endpoint's own identity.
	GUID hguid.GUID

	// Floor between consecutive ACKNACKs to one writer.
	// Zero falls back to [hrel.DefaultAckNackInterval];
	// a negative value disables rate limiting.
	AckNackInterval time.Duration

	// Lease applied to writers first seen via HEARTBEAT
	// rather than discovery. Zero means such writers never expire.
	DefaultLease time.Duration

	// How often expired leases are collected.
	LeaseCheckPeriod time.Duration

	// Where outbound ACKNACKs go.
	Sender htransport.Sender

	// Discovery change feed; the kernel applies
	// AddWriter/RemoveWriter events and ignores the reader kinds.
	Discovery *hpubsub.Feed[hdisc.Event]

	// Optional sample persistence.
	Recorder Recorder
}

// StatefulReader is a reliable reader endpoint:
// it tracks reception per matched writer
// and answers HEARTBEATs with ACKNACKs requesting whatever is missing.
type StatefulReader struct {
	log *slog.Logger

	guid hguid.GUID

	writers *hrel.WriterRegistry

	sender   htransport.Sender
	recorder Recorder

	leasePeriod time.Duration

	mainLoopDone chan struct{}
}

// NewStatefulReader returns a running reader endpoint.
// The kernel goroutine stops when ctx is canceled;
// call [*StatefulReader.Wait] afterwards.
func NewStatefulReader(
	ctx context.Context,
	log *slog.Logger,
	cfg ReaderConfig,
) *StatefulReader {
	leasePeriod := cfg.LeaseCheckPeriod
	if leasePeriod <= 0 {
		leasePeriod = time.Second
	}

	writers := hrel.NewWriterRegistry()
	if cfg.AckNackInterval != 0 {
		writers.SetAckNackInterval(cfg.AckNackInterval)
	}
	writers.SetDefaultLease(cfg.DefaultLease)

	r := &StatefulReader{
		log: log,

		guid: cfg.GUID,

		writers: writers,

		sender:   cfg.Sender,
		recorder: cfg.Recorder,

		leasePeriod: leasePeriod,

		mainLoopDone: make(chan struct{}),
	}

	go r.mainLoop(ctx, cfg.Discovery)

	return r
}

// GUID returns the endpoint's identity.
func (r *StatefulReader) GUID() hguid.GUID {
	return r.guid
}

// Wait blocks until the kernel goroutine has stopped.
func (r *StatefulReader) Wait() {
	<-r.mainLoopDone
}

func (r *StatefulReader) mainLoop(
	ctx context.Context,
	discovery *hpubsub.Feed[hdisc.Event],
) {
	defer close(r.mainLoopDone)

	gcTicker := time.NewTicker(r.leasePeriod)
	defer gcTicker.Stop()

	for {
		var discoveryReady <-chan struct{}
		if discovery != nil {
			discoveryReady = discovery.Ready
		}

		select {
		case <-ctx.Done():
			r.log.Info(
				"Reader stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)
			return

		case <-gcTicker.C:
			r.collectExpired()

		case <-discoveryReady:
			r.applyDiscovery(discovery.Val)
			discovery = discovery.Next
		}
	}
}

func (r *StatefulReader) applyDiscovery(e hdisc.Event) {
	switch e.Kind {
	case hdisc.AddWriter:
		r.writers.AddWriter(e.GUID, e.Locator, e.EffectiveLease())
		r.log.Debug("Matched writer", "writer", e.GUID, "locator", e.Locator)
	case hdisc.RemoveWriter:
		if r.writers.Remove(e.GUID) {
			r.log.Debug("Writer departed", "writer", e.GUID)
		}
	default:
		// Reader kinds are for writer endpoints.
	}

	hmetrics.MatchedWriters.Set(float64(r.writers.Len()))
}

func (r *StatefulReader) collectExpired() {
	n := r.writers.CleanupExpired()
	if n > 0 {
		r.log.Info("Evicted expired writers", "count", n)
		hmetrics.LeasesExpired.Add(float64(n))
		hmetrics.MatchedWriters.Set(float64(r.writers.Len()))
	}
}

// HandleData records an inbound sample's sequence number,
// creating the writer's proxy on first contact,
// and hands the payload to the recorder if one is configured.
func (r *StatefulReader) HandleData(e hwire.DataEvent) error {
	r.writers.OnData(e.Writer, e.Seq)
	hmetrics.DataReceived.Inc()

	if r.recorder == nil {
		return nil
	}
	if err := r.recorder.Record(e.Writer, e.Seq, e.Payload, time.Now()); err != nil {
		return fmt.Errorf("failed to record sample %d: %w", e.Seq, err)
	}
	return nil
}

// HandleHeartbeat resolves an inbound HEARTBEAT against the writer's
// proxy state and, when the decision calls for it, sends an ACKNACK
// back to the writer's locator.
//
// The sent-timestamp is marked only after a successful transmission,
// so a failed send does not burn the rate-limit window.
func (r *StatefulReader) HandleHeartbeat(ctx context.Context, e hwire.HeartbeatEvent) error {
	d := r.writers.OnHeartbeat(e.Writer, e.First, e.Last, e.Count, e.Final)
	hmetrics.HeartbeatsReceived.WithLabelValues(d.Kind.String()).Inc()

	if !d.Emits() {
		return nil
	}

	proxy := r.writers.Ensure(e.Writer)

	loc := proxy.Locator()
	if loc.IsZero() {
		// Heartbeat arrived before discovery told us where to answer.
		// The writer will heartbeat again.
		r.log.Debug("No locator for writer yet", "writer", e.Writer)
		return nil
	}

	set := hseq.NewNumberSet(d.BitmapBase)
	if d.Kind == hrel.DecisionNeedData {
		set.InsertRange(d.BitmapBase, e.Last)
	}

	sub := &hwire.AckNack{
		ReaderID: r.guid.EntityID(),
		WriterID: e.Writer.EntityID(),
		Set:      set,
		Count:    proxy.NextAckNackCount(),
		Final:    d.Final(),
	}

	raw, err := (&hwire.Message{
		Prefix: r.guid.Prefix(),
		Subs:   []hwire.Submessage{sub},
	}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode acknack: %w", err)
	}

	if err := r.sender.Send(ctx, loc, raw); err != nil {
		return fmt.Errorf("failed to send acknack: %w", err)
	}

	proxy.MarkAckNackSent()
	hmetrics.AckNacksSent.Inc()
	return nil
}

// HandleGap applies a writer's announcement that a sequence range
// will never be delivered. The end of the irrelevant range is
// one below the set's base, per the GAP submessage layout.
func (r *StatefulReader) HandleGap(e hwire.GapEvent) {
	end := e.Start
	if e.Set != nil && e.Set.Base() > hseq.First {
		end = e.Set.Base() - 1
	}
	r.writers.OnGap(e.Writer, e.Start, end)
}

// Synchronized reports whether every matched writer is fully received.
func (r *StatefulReader) Synchronized() bool {
	return r.writers.AllSynchronized()
}

// ReaderStats is a read-only snapshot for diagnostics.
type ReaderStats struct {
	GUID            string `json:"guid"`
	MatchedWriters  int    `json:"matched_writers"`
	AllSynchronized bool   `json:"all_synchronized"`
}

// Stats snapshots the endpoint for diagnostics.
func (r *StatefulReader) Stats() ReaderStats {
	return ReaderStats{
		GUID:            r.guid.String(),
		MatchedWriters:  r.writers.Len(),
		AllSynchronized: r.writers.AllSynchronized(),
	}
}
