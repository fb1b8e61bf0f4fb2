package hrel

import (
	"sync"
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
)

// ReaderProxy is a writer's view of one matched reader:
// how far the reader has acknowledged, where to send it data,
// and when it last showed signs of life.
//
// The proxy is pure bookkeeping of the acknowledgement watermark
// and sync flag; decoding the ACKNACK bitmap into specific
// missing sequences is the caller's concern.
type ReaderProxy struct {
	guid hguid.GUID

	mu sync.Mutex

	locator htransport.Locator
	lease   time.Duration

	lastAcked    hseq.Number
	synchronized bool

	// Guards against reordered ACKNACK processing:
	// an event whose count is not greater than this is stale.
	lastAckNackCount int32

	lastHeartbeatAt time.Time
	lastActivityAt  time.Time
}

// NewReaderProxy returns a proxy with zero acknowledged state.
func NewReaderProxy(
	guid hguid.GUID,
	loc htransport.Locator,
	lease time.Duration,
) *ReaderProxy {
	return &ReaderProxy{
		guid:           guid,
		locator:        loc,
		lease:          lease,
		lastActivityAt: time.Now(),
	}
}

// GUID returns the matched reader's identity.
func (p *ReaderProxy) GUID() hguid.GUID {
	return p.guid
}

// SetLocator refreshes the reader's unicast destination
// without resetting acknowledgement progress.
func (p *ReaderProxy) SetLocator(loc htransport.Locator) {
	p.mu.Lock()
	p.locator = loc
	p.mu.Unlock()
}

// Locator returns the reader's unicast destination.
func (p *ReaderProxy) Locator() htransport.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locator
}

// SetLease refreshes the reader's lease duration.
func (p *ReaderProxy) SetLease(d time.Duration) {
	p.mu.Lock()
	p.lease = d
	p.mu.Unlock()
}

// Touch refreshes the activity clock, deferring lease expiry.
func (p *ReaderProxy) Touch() {
	p.mu.Lock()
	p.lastActivityAt = time.Now()
	p.mu.Unlock()
}

// OnAckNack applies an acknowledgement with the given bitmap base:
// the reader requests base and above,
// meaning everything below base is acknowledged.
//
// The count guards against network reordering;
// an event whose count is not greater than the last applied one
// is discarded and OnAckNack reports false.
// A zero count bypasses the guard for callers without count tracking.
// The watermark additionally never regresses.
func (p *ReaderProxy) OnAckNack(base hseq.Number, hasGaps bool, count int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count != 0 {
		if count <= p.lastAckNackCount {
			return false
		}
		p.lastAckNackCount = count
	}

	if base < hseq.First {
		base = hseq.First
	}

	p.lastAcked = hseq.Max(p.lastAcked, base-1)
	p.synchronized = !hasGaps
	p.lastActivityAt = time.Now()

	return true
}

// LastAcked returns the highest sequence the reader has acknowledged.
func (p *ReaderProxy) LastAcked() hseq.Number {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAcked
}

// NeedsHeartbeat reports whether at least minInterval has elapsed
// since the last heartbeat to this reader.
// A reader that has never been heartbeated needs one immediately.
func (p *ReaderProxy) NeedsHeartbeat(minInterval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastHeartbeatAt.IsZero() ||
		time.Since(p.lastHeartbeatAt) >= minInterval
}

// MarkHeartbeatSent records that a heartbeat went out now.
func (p *ReaderProxy) MarkHeartbeatSent() {
	p.mu.Lock()
	p.lastHeartbeatAt = time.Now()
	p.mu.Unlock()
}

// Expired reports whether the reader has been silent past its lease.
// A zero lease never expires.
func (p *ReaderProxy) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lease > 0 && time.Since(p.lastActivityAt) > p.lease
}

// Synchronized reports whether the reader's last ACKNACK
// acknowledged everything without gaps.
func (p *ReaderProxy) Synchronized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synchronized
}
