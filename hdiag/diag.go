// Package hdiag serves read-only diagnostics over HTTP:
// endpoint snapshots as JSON and Prometheus metrics.
//
// The handlers only ever snapshot; nothing here can mutate
// protocol state.
package hdiag

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heron-dds/heron/hendpoint"
)

// Registry collects the endpoints a participant exposes
// to the diagnostics handler.
type Registry struct {
	mu sync.RWMutex

	writers []*hendpoint.StatefulWriter
	readers []*hendpoint.StatefulReader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return new(Registry)
}

// AddWriter exposes w's stats.
func (r *Registry) AddWriter(w *hendpoint.StatefulWriter) {
	r.mu.Lock()
	r.writers = append(r.writers, w)
	r.mu.Unlock()
}

// AddReader exposes rd's stats.
func (r *Registry) AddReader(rd *hendpoint.StatefulReader) {
	r.mu.Lock()
	r.readers = append(r.readers, rd)
	r.mu.Unlock()
}

// Snapshot is the JSON body served at /endpoints.
type Snapshot struct {
	Writers []hendpoint.WriterStats `json:"writers"`
	Readers []hendpoint.ReaderStats `json:"readers"`
}

// Snapshot captures every registered endpoint's stats.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Writers: make([]hendpoint.WriterStats, 0, len(r.writers)),
		Readers: make([]hendpoint.ReaderStats, 0, len(r.readers)),
	}
	for _, w := range r.writers {
		s.Writers = append(s.Writers, w.Stats())
	}
	for _, rd := range r.readers {
		s.Readers = append(s.Readers, rd.Stats())
	}
	return s
}

// NewHandler returns the diagnostics HTTP handler.
func NewHandler(log *slog.Logger, reg *Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/endpoints", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(log, w, reg.Snapshot())
	})

	r.Get("/endpoints/writers", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(log, w, reg.Snapshot().Writers)
	})

	r.Get("/endpoints/readers", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(log, w, reg.Snapshot().Readers)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Info("Failed to encode diagnostics response", "err", err)
	}
}
