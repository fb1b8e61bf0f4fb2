package hrel

import (
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/internal/hmap"
)

// ReaderRegistry is a writer's set of matched readers.
//
// One registry is constructed per writer endpoint
// and destroyed with it; there is no shared or global instance.
// Entries are independent: the data path snapshots locators
// while the control path mutates acknowledgement state,
// without a registry-wide lock.
type ReaderRegistry struct {
	m *hmap.Map[*ReaderProxy]
}

// NewReaderRegistry returns an empty registry.
func NewReaderRegistry() *ReaderRegistry {
	return &ReaderRegistry{m: hmap.New[*ReaderProxy]()}
}

// AddReader upserts a matched reader.
// A known GUID has its locator and lease refreshed and is touched,
// preserving acknowledgement progress;
// an unknown GUID gets a fresh zero-state entry.
func (r *ReaderRegistry) AddReader(
	g hguid.GUID,
	loc htransport.Locator,
	lease time.Duration,
) {
	p, existed := r.m.GetOrCreate(g, func() *ReaderProxy {
		return NewReaderProxy(g, loc, lease)
	})
	if existed {
		p.SetLocator(loc)
		p.SetLease(lease)
		p.Touch()
	}
}

// Get returns the proxy for g, if matched.
func (r *ReaderRegistry) Get(g hguid.GUID) (*ReaderProxy, bool) {
	return r.m.Get(g)
}

// OnAckNack applies an acknowledgement from reader g,
// returning the reader's locator for retransmission fan-out.
//
// An ACKNACK from an unmatched or just-evicted reader
// is silently dropped (ok=false), never an error.
// ok is also false for a stale (reordered) event.
func (r *ReaderRegistry) OnAckNack(
	g hguid.GUID,
	base hseq.Number,
	hasGaps bool,
	count int32,
) (loc htransport.Locator, ok bool) {
	p, found := r.m.Get(g)
	if !found {
		return htransport.Locator{}, false
	}
	if !p.OnAckNack(base, hasGaps, count) {
		return htransport.Locator{}, false
	}
	return p.Locator(), true
}

// AllLocators snapshots every matched reader's locator,
// for multicast-fallback fan-out on the data path.
func (r *ReaderRegistry) AllLocators() []htransport.Locator {
	locs := make([]htransport.Locator, 0, r.m.Len())
	r.m.Range(func(_ hguid.GUID, p *ReaderProxy) bool {
		locs = append(locs, p.Locator())
		return true
	})
	return locs
}

// ReaderDue identifies a reader owed a heartbeat.
type ReaderDue struct {
	GUID    hguid.GUID
	Locator htransport.Locator
}

// NeedingHeartbeat returns the readers whose last heartbeat
// is at least minInterval old.
func (r *ReaderRegistry) NeedingHeartbeat(minInterval time.Duration) []ReaderDue {
	var due []ReaderDue
	r.m.Range(func(g hguid.GUID, p *ReaderProxy) bool {
		if p.NeedsHeartbeat(minInterval) {
			due = append(due, ReaderDue{GUID: g, Locator: p.Locator()})
		}
		return true
	})
	return due
}

// Slowest returns the reader with the lowest acknowledged sequence.
// That watermark is the oldest sample the writer must still retain:
// history below it cannot be discarded.
// ok is false for an empty registry.
func (r *ReaderRegistry) Slowest() (g hguid.GUID, acked hseq.Number, ok bool) {
	r.m.Range(func(rg hguid.GUID, p *ReaderProxy) bool {
		a := p.LastAcked()
		if !ok || a < acked {
			g, acked, ok = rg, a, true
		}
		return true
	})
	return g, acked, ok
}

// AllSynchronized reports whether the registry is non-empty
// and every reader is synchronized.
// Periodic heartbeat emission can be throttled while this holds.
func (r *ReaderRegistry) AllSynchronized() bool {
	if r.m.Len() == 0 {
		return false
	}

	all := true
	r.m.Range(func(_ hguid.GUID, p *ReaderProxy) bool {
		if !p.Synchronized() {
			all = false
			return false
		}
		return true
	})
	return all
}

// Remove evicts g, reporting whether it was matched.
func (r *ReaderRegistry) Remove(g hguid.GUID) bool {
	return r.m.Delete(g)
}

// CleanupExpired evicts every reader past its lease,
// returning the eviction count. Expiry is garbage collection,
// not an error.
func (r *ReaderRegistry) CleanupExpired() int {
	return r.m.DeleteFunc(func(_ hguid.GUID, p *ReaderProxy) bool {
		return p.Expired()
	})
}

// Clear evicts everything.
func (r *ReaderRegistry) Clear() {
	r.m.Clear()
}

// Len returns the number of matched readers.
func (r *ReaderRegistry) Len() int {
	return r.m.Len()
}

// Empty reports whether no readers are matched.
func (r *ReaderRegistry) Empty() bool {
	return r.m.Len() == 0
}
