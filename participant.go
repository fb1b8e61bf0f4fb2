package heron

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/heron-dds/heron/hconfig"
	"github.com/heron-dds/heron/hdiag"
	"github.com/heron-dds/heron/hdisc"
	"github.com/heron-dds/heron/hendpoint"
	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hpubsub"
	"github.com/heron-dds/heron/hrecord"
	"github.com/heron-dds/heron/htransport"
	"github.com/heron-dds/heron/hwire"
)

// Participant owns one UDP socket, a GUID prefix,
// and the endpoints created under it.
// Inbound messages are decoded once and routed to endpoints
// by destination entity ID; a zero destination fans out
// to every endpoint of the matching kind.
type Participant struct {
	log *slog.Logger
	cfg hconfig.Config

	prefix hguid.Prefix

	transport *htransport.UDPTransport

	recorder *hrecord.Recorder

	diag *hdiag.Registry

	mu       sync.Mutex
	writers  map[hguid.EntityID]*hendpoint.StatefulWriter
	readers  map[hguid.EntityID]*hendpoint.StatefulReader
	discTail *hpubsub.Feed[hdisc.Event]
	nextKey  uint32

	mainLoopDone chan struct{}
}

// NewParticipant binds the transport and starts the receive loop.
// The participant stops when ctx is canceled;
// call [*Participant.Wait] afterwards.
func NewParticipant(
	ctx context.Context,
	log *slog.Logger,
	cfg hconfig.Config,
) (*Participant, error) {
	bind, err := netip.ParseAddrPort(cfg.Transport.Bind)
	if err != nil {
		return nil, fmt.Errorf("bad transport bind address: %w", err)
	}

	transport, err := htransport.NewUDPTransport(log, bind)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		log: log,
		cfg: cfg,

		prefix: hguid.NewPrefix(),

		transport: transport,

		diag: hdiag.NewRegistry(),

		writers:  map[hguid.EntityID]*hendpoint.StatefulWriter{},
		readers:  map[hguid.EntityID]*hendpoint.StatefulReader{},
		discTail: hpubsub.NewFeed[hdisc.Event](),

		mainLoopDone: make(chan struct{}),
	}

	if path := cfg.Recording.Path; path != "" {
		p.recorder, err = hrecord.Open(path)
		if err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("failed to open recorder: %w", err)
		}
	}

	if diagBind := cfg.Diagnostics.Bind; diagBind != "" {
		p.serveDiagnostics(ctx, diagBind)
	}

	datagrams := make(chan htransport.Datagram, 64)
	transport.Receive(ctx, datagrams)
	go p.mainLoop(ctx, datagrams)

	log.Info(
		"Participant running",
		"prefix", p.prefix,
		"addr", transport.LocalAddr(),
	)
	return p, nil
}

// Prefix returns the participant's GUID prefix.
// Every endpoint it creates shares it.
func (p *Participant) Prefix() hguid.Prefix {
	return p.prefix
}

// LocalAddr returns the bound transport address:
// the locator other participants should be told about.
func (p *Participant) LocalAddr() netip.AddrPort {
	return p.transport.LocalAddr()
}

// Locator returns the participant's own UDP locator.
func (p *Participant) Locator() htransport.Locator {
	return htransport.UDPv4(p.transport.LocalAddr())
}

// Wait blocks until the receive loop has stopped
// and the recorder, if any, is closed.
func (p *Participant) Wait() {
	<-p.mainLoopDone
	p.transport.Wait()

	if p.recorder != nil {
		if err := p.recorder.Close(); err != nil {
			p.log.Info("Failed to close recorder", "err", err)
		}
	}
}

// CreateWriter creates a reliable writer endpoint under the
// participant's prefix. The endpoint stops with the participant's ctx.
func (p *Participant) CreateWriter(ctx context.Context) *hendpoint.StatefulWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	entity := hguid.NewEntityID(p.nextEntityKey(), hguid.KindWriterWithKey)

	w := hendpoint.NewStatefulWriter(
		ctx,
		p.log.With("writer", entity),
		hendpoint.WriterConfig{
			GUID:             hguid.New(p.prefix, entity),
			HeartbeatPeriod:  p.cfg.Protocol.HeartbeatPeriod(),
			LeaseCheckPeriod: p.cfg.Protocol.LeaseCheckPeriod(),
			HistoryDepth:     p.cfg.Protocol.HistoryDepth,
			Sender:           p.transport,
			Discovery:        p.discTail,
		},
	)

	p.writers[entity] = w
	p.diag.AddWriter(w)
	return w
}

// CreateReader creates a reliable reader endpoint under the
// participant's prefix. Samples it receives go to the configured
// recorder, if any.
func (p *Participant) CreateReader(ctx context.Context) *hendpoint.StatefulReader {
	p.mu.Lock()
	defer p.mu.Unlock()

	entity := hguid.NewEntityID(p.nextEntityKey(), hguid.KindReaderWithKey)

	cfg := hendpoint.ReaderConfig{
		GUID:             hguid.New(p.prefix, entity),
		AckNackInterval:  p.cfg.Protocol.AckNackInterval(),
		DefaultLease:     p.cfg.Protocol.LeaseDuration(),
		LeaseCheckPeriod: p.cfg.Protocol.LeaseCheckPeriod(),
		Sender:           p.transport,
		Discovery:        p.discTail,
	}
	if p.recorder != nil {
		cfg.Recorder = p.recorder
	}

	r := hendpoint.NewStatefulReader(ctx, p.log.With("reader", entity), cfg)

	p.readers[entity] = r
	p.diag.AddReader(r)
	return r
}

// nextEntityKey must be called with p.mu held.
func (p *Participant) nextEntityKey() uint32 {
	p.nextKey++
	return p.nextKey
}

// Announce posts a discovery event to every endpoint's kernel.
// Until a real discovery protocol feeds this,
// it is how deployments wire peers together.
func (p *Participant) Announce(e hdisc.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.discTail.Post(e)
	p.discTail = p.discTail.Next
}

// Recorder returns the participant's sample recorder, if configured.
func (p *Participant) Recorder() (*hrecord.Recorder, bool) {
	return p.recorder, p.recorder != nil
}

// Diagnostics returns the registry backing the HTTP surface,
// for embedding in an external server.
func (p *Participant) Diagnostics() *hdiag.Registry {
	return p.diag
}

func (p *Participant) serveDiagnostics(ctx context.Context, bind string) {
	srv := &http.Server{
		Addr:    bind,
		Handler: hdiag.NewHandler(p.log, p.diag),
	}

	context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Warn("Diagnostics server stopped", "err", err)
		}
	}()
}

func (p *Participant) mainLoop(ctx context.Context, in <-chan htransport.Datagram) {
	defer close(p.mainLoopDone)

	for {
		select {
		case <-ctx.Done():
			p.log.Info(
				"Participant stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)
			return

		case dg := <-in:
			p.handleDatagram(ctx, dg)
		}
	}
}

func (p *Participant) handleDatagram(ctx context.Context, dg htransport.Datagram) {
	var m hwire.Message
	if err := m.Unmarshal(dg.Payload); err != nil {
		p.log.Debug(
			"Dropping undecodable datagram",
			"from", dg.From, "err", err,
		)
		return
	}

	if m.Prefix == p.prefix {
		// Our own traffic reflected back.
		return
	}

	for _, e := range hwire.EventsFromMessage(&m) {
		switch e := e.(type) {
		case hwire.DataEvent:
			p.eachReader(e.Dest, func(r *hendpoint.StatefulReader) {
				if err := r.HandleData(e); err != nil {
					p.log.Info("Failed to handle sample", "err", err)
				}
			})

		case hwire.HeartbeatEvent:
			p.eachReader(e.Dest, func(r *hendpoint.StatefulReader) {
				if err := r.HandleHeartbeat(ctx, e); err != nil {
					p.log.Info("Failed to answer heartbeat", "err", err)
				}
			})

		case hwire.GapEvent:
			p.eachReader(e.Dest, func(r *hendpoint.StatefulReader) {
				r.HandleGap(e)
			})

		case hwire.AckNackEvent:
			p.eachWriter(e.Dest, func(w *hendpoint.StatefulWriter) {
				if err := w.HandleAckNack(ctx, e); err != nil {
					p.log.Info("Failed to handle acknack", "err", err)
				}
			})
		}
	}
}

func (p *Participant) eachReader(
	dest hguid.EntityID, fn func(*hendpoint.StatefulReader),
) {
	p.mu.Lock()
	targets := make([]*hendpoint.StatefulReader, 0, len(p.readers))
	if dest == (hguid.EntityID{}) {
		for _, r := range p.readers {
			targets = append(targets, r)
		}
	} else if r, ok := p.readers[dest]; ok {
		targets = append(targets, r)
	}
	p.mu.Unlock()

	for _, r := range targets {
		fn(r)
	}
}

func (p *Participant) eachWriter(
	dest hguid.EntityID, fn func(*hendpoint.StatefulWriter),
) {
	p.mu.Lock()
	targets := make([]*hendpoint.StatefulWriter, 0, len(p.writers))
	if dest == (hguid.EntityID{}) {
		for _, w := range p.writers {
			targets = append(targets, w)
		}
	} else if w, ok := p.writers[dest]; ok {
		targets = append(targets, w)
	}
	p.mu.Unlock()

	for _, w := range targets {
		fn(w)
	}
}
