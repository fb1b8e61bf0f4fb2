package hrel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/heron-dds/heron/hrel"
	"github.com/heron-dds/heron/hseq"
	"github.com/stretchr/testify/require"
)

func TestReaderRegistry_addIsIdempotentUpsert(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	g := readerGUID(1)

	r.AddReader(g, testLocator(1), time.Minute)
	require.Equal(t, 1, r.Len())

	_, ok := r.OnAckNack(g, 11, false, 1)
	require.True(t, ok)

	// Re-discovery refreshes metadata without resetting progress.
	r.AddReader(g, testLocator(2), time.Hour)
	require.Equal(t, 1, r.Len())

	p, ok := r.Get(g)
	require.True(t, ok)
	require.Equal(t, hseq.Number(10), p.LastAcked())
	require.Equal(t, testLocator(2), p.Locator())
}

func TestReaderRegistry_acknackBookkeeping(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	g := readerGUID(2)
	r.AddReader(g, testLocator(2), time.Minute)

	loc, ok := r.OnAckNack(g, 5, false, 1)
	require.True(t, ok)
	require.Equal(t, testLocator(2), loc)

	p, _ := r.Get(g)
	require.Equal(t, hseq.Number(4), p.LastAcked())
	require.True(t, p.Synchronized())
}

func TestReaderRegistry_unknownPeerIsNoop(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()

	// An ACKNACK from an unmatched or just-evicted reader
	// is silently dropped, never an error.
	_, ok := r.OnAckNack(readerGUID(3), 5, false, 1)
	require.False(t, ok)
	require.Zero(t, r.Len())
}

func TestReaderRegistry_slowest(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()

	_, _, ok := r.Slowest()
	require.False(t, ok)

	g1, g2, g3 := readerGUID(4), readerGUID(5), readerGUID(6)
	r.AddReader(g1, testLocator(4), time.Minute)
	r.AddReader(g2, testLocator(5), time.Minute)
	r.AddReader(g3, testLocator(6), time.Minute)

	_, _ = r.OnAckNack(g1, 11, false, 1)
	_, _ = r.OnAckNack(g2, 6, false, 1)
	_, _ = r.OnAckNack(g3, 9, false, 1)

	g, acked, ok := r.Slowest()
	require.True(t, ok)
	require.Equal(t, g2, g)
	require.Equal(t, hseq.Number(5), acked)
}

func TestReaderRegistry_allSynchronized(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()

	// Empty registry is not "all synchronized".
	require.False(t, r.AllSynchronized())

	g1, g2 := readerGUID(7), readerGUID(8)
	r.AddReader(g1, testLocator(7), time.Minute)
	r.AddReader(g2, testLocator(8), time.Minute)

	_, _ = r.OnAckNack(g1, 10, false, 1)
	require.False(t, r.AllSynchronized())

	_, _ = r.OnAckNack(g2, 10, true, 1)
	require.False(t, r.AllSynchronized())

	_, _ = r.OnAckNack(g2, 10, false, 2)
	require.True(t, r.AllSynchronized())
}

func TestReaderRegistry_cleanupExpired(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	r.AddReader(readerGUID(9), testLocator(9), time.Millisecond)
	require.Equal(t, 1, r.Len())

	time.Sleep(3 * time.Millisecond)

	require.Equal(t, 1, r.CleanupExpired())
	require.Zero(t, r.Len())
	require.True(t, r.Empty())
}

func TestReaderRegistry_needingHeartbeat(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	g1, g2 := readerGUID(10), readerGUID(11)
	r.AddReader(g1, testLocator(10), time.Minute)
	r.AddReader(g2, testLocator(11), time.Minute)

	due := r.NeedingHeartbeat(time.Hour)
	require.Len(t, due, 2)

	p, _ := r.Get(g1)
	p.MarkHeartbeatSent()

	due = r.NeedingHeartbeat(time.Hour)
	require.Len(t, due, 1)
	require.Equal(t, g2, due[0].GUID)
	require.Equal(t, testLocator(11), due[0].Locator)
}

func TestReaderRegistry_removeAndClear(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	g := readerGUID(12)
	r.AddReader(g, testLocator(12), time.Minute)

	require.True(t, r.Remove(g))
	require.False(t, r.Remove(g))

	r.AddReader(g, testLocator(12), time.Minute)
	r.AddReader(readerGUID(13), testLocator(13), time.Minute)
	r.Clear()
	require.True(t, r.Empty())
}

func TestReaderRegistry_allLocators(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	r.AddReader(readerGUID(14), testLocator(14), time.Minute)
	r.AddReader(readerGUID(15), testLocator(15), time.Minute)

	locs := r.AllLocators()
	require.Len(t, locs, 2)
	require.ElementsMatch(t,
		[]string{"udpv4://127.0.0.1:14", "udpv4://127.0.0.1:15"},
		[]string{locs[0].String(), locs[1].String()},
	)
}

func TestReaderRegistry_concurrentDataAndControlPaths(t *testing.T) {
	t.Parallel()

	r := hrel.NewReaderRegistry()
	for i := byte(0); i < 32; i++ {
		r.AddReader(readerGUID(i), testLocator(uint16(i)+1), time.Minute)
	}

	var wg sync.WaitGroup
	wg.Add(3)

	// Data path: locator fan-out on every write.
	go func() {
		defer wg.Done()
		for range 500 {
			_ = r.AllLocators()
			_, _, _ = r.Slowest()
		}
	}()

	// Control path: inbound ACKNACK processing.
	go func() {
		defer wg.Done()
		for i := int32(1); i <= 500; i++ {
			_, _ = r.OnAckNack(readerGUID(byte(i%32)), hseq.Number(i), false, i)
		}
	}()

	// Discovery path: re-announcements and departures.
	go func() {
		defer wg.Done()
		for i := range 200 {
			g := readerGUID(byte(i % 32))
			r.AddReader(g, testLocator(uint16(i%32)+1), time.Minute)
		}
	}()

	wg.Wait()
	require.Equal(t, 32, r.Len())
}
