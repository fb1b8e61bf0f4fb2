package hrecord_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hrecord"
	"github.com/heron-dds/heron/hseq"
	"github.com/stretchr/testify/require"
)

func openRecorder(t *testing.T) *hrecord.Recorder {
	t.Helper()

	r, err := hrecord.Open(filepath.Join(t.TempDir(), "recording.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecorder_recordAndReplay(t *testing.T) {
	t.Parallel()

	r := openRecorder(t)

	w := hguid.New(hguid.NewPrefix(), hguid.NewEntityID(1, hguid.KindWriterWithKey))
	now := time.Now()

	require.NoError(t, r.Record(w, 1, []byte("one"), now))
	require.NoError(t, r.Record(w, 2, []byte("two"), now))
	require.NoError(t, r.Record(w, 3, []byte("three"), now))

	samples, err := r.Replay(w, 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, hseq.Number(2), samples[0].Seq)
	require.Equal(t, []byte("two"), samples[0].Payload)
	require.Equal(t, hseq.Number(3), samples[1].Seq)
}

func TestRecorder_duplicatesKeepFirst(t *testing.T) {
	t.Parallel()

	r := openRecorder(t)

	w := hguid.New(hguid.NewPrefix(), hguid.NewEntityID(2, hguid.KindWriterWithKey))
	now := time.Now()

	require.NoError(t, r.Record(w, 1, []byte("original"), now))
	// At-least-once delivery: a retransmitted sample arrives again.
	require.NoError(t, r.Record(w, 1, []byte("duplicate"), now.Add(time.Second)))

	samples, err := r.Replay(w, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, []byte("original"), samples[0].Payload)

	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRecorder_replayScopedToWriter(t *testing.T) {
	t.Parallel()

	r := openRecorder(t)

	w1 := hguid.New(hguid.NewPrefix(), hguid.NewEntityID(1, hguid.KindWriterWithKey))
	w2 := hguid.New(hguid.NewPrefix(), hguid.NewEntityID(1, hguid.KindWriterWithKey))
	now := time.Now()

	require.NoError(t, r.Record(w1, 1, []byte("from w1"), now))
	require.NoError(t, r.Record(w2, 1, []byte("from w2"), now))

	samples, err := r.Replay(w1, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, []byte("from w1"), samples[0].Payload)
}
