package hrel

import (
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/internal/hmap"
)

// WriterRegistry is a reader's set of matched writers,
// the same shape as [ReaderRegistry] on the other side.
// One registry is constructed per reader endpoint.
type WriterRegistry struct {
	m *hmap.Map[*WriterProxy]

	acknackInterval time.Duration
	defaultLease    time.Duration
}

// NewWriterRegistry returns an empty registry.
// Proxies it creates use [DefaultAckNackInterval] and no lease
// unless configured otherwise.
func NewWriterRegistry() *WriterRegistry {
	return &WriterRegistry{
		m:               hmap.New[*WriterProxy](),
		acknackInterval: DefaultAckNackInterval,
	}
}

// SetAckNackInterval sets the rate-limit floor
// applied to proxies created after this call.
func (r *WriterRegistry) SetAckNackInterval(d time.Duration) {
	r.acknackInterval = d
}

// SetDefaultLease sets the lease applied to writers
// first seen via HEARTBEAT rather than discovery.
func (r *WriterRegistry) SetDefaultLease(d time.Duration) {
	r.defaultLease = d
}

// AddWriter upserts a matched writer from discovery.
// A known GUID has its locator and lease refreshed and is touched;
// reception state is preserved.
func (r *WriterRegistry) AddWriter(
	g hguid.GUID,
	loc htransport.Locator,
	lease time.Duration,
) {
	p, existed := r.m.GetOrCreate(g, func() *WriterProxy {
		return r.newProxy(g)
	})

	// A zero locator from discovery never clobbers a known one.
	if !loc.IsZero() {
		p.SetLocator(loc)
	}
	p.SetLease(lease)
	if existed {
		p.Touch()
	}
}

func (r *WriterRegistry) newProxy(g hguid.GUID) *WriterProxy {
	p := NewWriterProxy(g)
	p.SetAckNackInterval(r.acknackInterval)
	p.SetLease(r.defaultLease)
	return p
}

// Ensure returns the proxy for g, creating zero state if absent.
// A writer's first HEARTBEAT can arrive before discovery reports it.
func (r *WriterRegistry) Ensure(g hguid.GUID) *WriterProxy {
	p, _ := r.m.GetOrCreate(g, func() *WriterProxy {
		return r.newProxy(g)
	})
	return p
}

// Get returns the proxy for g, if matched.
func (r *WriterRegistry) Get(g hguid.GUID) (*WriterProxy, bool) {
	return r.m.Get(g)
}

// OnHeartbeat routes a HEARTBEAT from writer g to its proxy,
// creating the proxy on first contact.
func (r *WriterRegistry) OnHeartbeat(
	g hguid.GUID,
	first, last hseq.Number,
	count int32,
	final bool,
) AckNackDecision {
	return r.Ensure(g).OnHeartbeat(first, last, count, final)
}

// OnData records a sequence arrival from writer g.
// Data from an unknown writer creates its proxy;
// the sample itself is the proof of matching.
func (r *WriterRegistry) OnData(g hguid.GUID, seq hseq.Number) {
	r.Ensure(g).OnData(seq)
}

// OnGap applies a gap announcement from writer g.
func (r *WriterRegistry) OnGap(g hguid.GUID, start, end hseq.Number) {
	r.Ensure(g).OnGap(start, end)
}

// AllSynchronized reports whether the registry is non-empty
// and every matched writer is fully received.
func (r *WriterRegistry) AllSynchronized() bool {
	if r.m.Len() == 0 {
		return false
	}

	all := true
	r.m.Range(func(_ hguid.GUID, p *WriterProxy) bool {
		if !p.Synchronized() {
			all = false
			return false
		}
		return true
	})
	return all
}

// Remove evicts g, reporting whether it was matched.
func (r *WriterRegistry) Remove(g hguid.GUID) bool {
	return r.m.Delete(g)
}

// CleanupExpired evicts every writer silent past its lease.
// A re-appearing writer is re-created from zero state
// and the proxy then re-requests everything it is missing.
func (r *WriterRegistry) CleanupExpired() int {
	return r.m.DeleteFunc(func(_ hguid.GUID, p *WriterProxy) bool {
		return p.Expired()
	})
}

// Clear evicts everything.
func (r *WriterRegistry) Clear() {
	r.m.Clear()
}

// Len returns the number of matched writers.
func (r *WriterRegistry) Len() int {
	return r.m.Len()
}

// Empty reports whether no writers are matched.
func (r *WriterRegistry) Empty() bool {
	return r.m.Len() == 0
}
