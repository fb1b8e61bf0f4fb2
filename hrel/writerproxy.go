package hrel

import (
	"sync"
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
)

// DefaultAckNackInterval is the floor between consecutive ACKNACKs
// to the same writer. Heartbeats arriving inside the window
// resolve to [DecisionRateLimited].
const DefaultAckNackInterval = 10 * time.Millisecond

// WriterProxy is a reader's view of one matched writer:
// the highest sequence received from it,
// the range the writer last announced,
// and the bookkeeping that suppresses duplicate heartbeats
// and rate-limits ACKNACK emission.
//
// Methods never panic; a malformed heartbeat range degrades to
// the "writer has nothing" branch rather than erroring.
type WriterProxy struct {
	guid hguid.GUID

	mu sync.Mutex

	highestReceived hseq.Number
	expectedMax     hseq.Number

	lastHeartbeatCount int32
	lastAckNackSentAt  time.Time

	acknackCount int32

	acknackInterval time.Duration

	locator        htransport.Locator
	lease          time.Duration
	lastActivityAt time.Time
}

// NewWriterProxy returns a proxy with nothing received.
// It does not contact the network.
func NewWriterProxy(guid hguid.GUID) *WriterProxy {
	return &WriterProxy{
		guid:            guid,
		acknackInterval: DefaultAckNackInterval,
		lastActivityAt:  time.Now(),
	}
}

// GUID returns the matched writer's identity.
func (p *WriterProxy) GUID() hguid.GUID {
	return p.guid
}

// SetAckNackInterval overrides the ACKNACK rate-limit floor.
// Zero disables rate limiting.
func (p *WriterProxy) SetAckNackInterval(d time.Duration) {
	p.mu.Lock()
	p.acknackInterval = d
	p.mu.Unlock()
}

// SetLocator records where ACKNACKs to this writer are sent.
func (p *WriterProxy) SetLocator(loc htransport.Locator) {
	p.mu.Lock()
	p.locator = loc
	p.mu.Unlock()
}

// Locator returns the writer's control destination.
func (p *WriterProxy) Locator() htransport.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locator
}

// SetLease records the writer's lease duration for expiry checks.
// Zero means the proxy never expires.
func (p *WriterProxy) SetLease(d time.Duration) {
	p.mu.Lock()
	p.lease = d
	p.mu.Unlock()
}

// Touch refreshes the activity clock, deferring lease expiry.
func (p *WriterProxy) Touch() {
	p.mu.Lock()
	p.lastActivityAt = time.Now()
	p.mu.Unlock()
}

// Expired reports whether the writer has been silent past its lease.
func (p *WriterProxy) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lease > 0 && time.Since(p.lastActivityAt) > p.lease
}

// OnHeartbeat resolves an announced [first, last] range
// and heartbeat count into an ACKNACK decision.
//
// The count check comes first: a heartbeat whose count is not greater
// than the last non-zero count seen is ignored outright.
// That suppression is the primary defense against
// HEARTBEAT/ACKNACK oscillation from duplicated control messages.
func (p *WriterProxy) OnHeartbeat(
	first, last hseq.Number,
	count int32,
	final bool,
) AckNackDecision {
	_ = final // The writer's final flag does not alter the decision.

	p.mu.Lock()
	defer p.mu.Unlock()

	if count <= p.lastHeartbeatCount && p.lastHeartbeatCount > 0 {
		return AckNackDecision{Kind: DecisionIgnore}
	}

	p.lastHeartbeatCount = count
	p.expectedMax = last
	p.lastActivityAt = time.Now()

	if last < first || last == hseq.None {
		// The writer announces no data.
		// A reversed range lands here too: availability over strictness.
		return AckNackDecision{
			Kind:       DecisionSynchronized,
			BitmapBase: hseq.Max(first, hseq.First),
		}
	}

	if p.acknackInterval > 0 &&
		!p.lastAckNackSentAt.IsZero() &&
		time.Since(p.lastAckNackSentAt) < p.acknackInterval {
		return AckNackDecision{Kind: DecisionRateLimited}
	}

	base := hseq.Max(p.highestReceived.Next(), first)

	if p.highestReceived >= last {
		return AckNackDecision{
			Kind:       DecisionSynchronized,
			BitmapBase: base,
		}
	}

	return AckNackDecision{
		Kind:       DecisionNeedData,
		BitmapBase: base,
	}
}

// OnData records the arrival of a sequence from the writer.
// Duplicates and out-of-order-low arrivals are no-ops.
func (p *WriterProxy) OnData(seq hseq.Number) {
	p.mu.Lock()
	if seq > p.highestReceived {
		p.highestReceived = seq
	}
	p.lastActivityAt = time.Now()
	p.mu.Unlock()
}

// OnGap applies a writer's announcement that [start, end]
// will never be delivered.
// The watermark advances only over a gap contiguous with it;
// a gap strictly above start+1 territory not yet reached
// must not skip sequences that may still arrive.
func (p *WriterProxy) OnGap(start, end hseq.Number) {
	p.mu.Lock()
	if start <= p.highestReceived.Next() && end > p.highestReceived {
		p.highestReceived = end
	}
	p.lastActivityAt = time.Now()
	p.mu.Unlock()
}

// HighestReceived returns the top sequence seen from the writer.
func (p *WriterProxy) HighestReceived() hseq.Number {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highestReceived
}

// MarkAckNackSent records the emission time for rate limiting.
// Call it exactly once per ACKNACK actually transmitted;
// Ignore and RateLimited outcomes must not be marked.
func (p *WriterProxy) MarkAckNackSent() {
	p.mu.Lock()
	p.lastAckNackSentAt = time.Now()
	p.mu.Unlock()
}

// NextAckNackCount returns the count field for the next outbound ACKNACK.
// Counts are strictly increasing per writer.
func (p *WriterProxy) NextAckNackCount() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acknackCount++
	return p.acknackCount
}

// Synchronized reports whether the reader has received everything
// the writer has announced so far.
func (p *WriterProxy) Synchronized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expectedMax > 0 && p.highestReceived >= p.expectedMax
}
