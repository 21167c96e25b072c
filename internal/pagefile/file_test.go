package pagefile

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sekai02/redcloud-pages/internal/paging"
	"github.com/sekai02/redcloud-pages/internal/storage"
)

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openFile(t *testing.T, backend storage.Backend, name string, opts ...Option) *File {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	f := New(backend, name, opts...)
	require.NoError(t, f.Open(context.Background()))
	return f
}

func randomBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func pageSaves(store *storage.MemStore) []string {
	var result []string
	for _, name := range store.Saves() {
		if strings.HasPrefix(name, "data/") {
			result = append(result, name)
		}
	}
	return result
}

func loadPayload(t *testing.T, store storage.Backend, name string) []byte {
	t.Helper()

	raw, err := store.LoadObject(context.Background(), name)
	require.NoError(t, err)
	payload, err := DecodePage(raw)
	require.NoError(t, err)
	return payload
}

func TestOpenCreatesDataContainer(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()

	f := openFile(t, store, "feed")
	require.Equal(t, StateOpen, f.State())
	require.True(t, store.ContainerExists(ctx, "data"))

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Zero(t, stats.Size)

	// a second file over the same backend finds the container in place
	openFile(t, store, "other")
}

func TestOpenContainerFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	store.FailSave("data", errBoom)

	f := New(store, "feed", WithLogger(quietLogger()))
	err := f.Open(ctx)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, StateUnopened, f.State())

	_, err = f.Read(ctx, 0, 1)
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenLoadsStats(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	require.NoError(t, store.SaveText(ctx, "feed.stats.json", `{"size":1234}`))

	f := openFile(t, store, "feed")
	stats, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(1234), stats.Size)
}

func TestOpenBadStatsFallsBackToZero(t *testing.T) {
	ctx := context.Background()

	store := storage.NewMemStore()
	require.NoError(t, store.SaveText(ctx, "feed.stats.json", `not json`))
	f := openFile(t, store, "feed")
	stats, err := f.Stat()
	require.NoError(t, err)
	require.Zero(t, stats.Size)

	store = storage.NewMemStore()
	store.FailLoad("feed.stats.json", errBoom)
	f = openFile(t, store, "feed")
	stats, err = f.Stat()
	require.NoError(t, err)
	require.Zero(t, stats.Size)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		off int64
		n   int
	}{
		{0, 1},
		{0, 4000},
		{0, 6000},
		{3995, 10},
		{3999, 2},
		{7999, 12001},
		{123456, 777},
	}

	for i, tc := range cases {
		f := openFile(t, storage.NewMemStore(), "feed")
		data := randomBytes(int64(i), tc.n)

		n, err := f.Write(ctx, tc.off, data)
		require.NoError(t, err)
		require.Equal(t, tc.n, n)

		got, err := f.Read(ctx, tc.off, int64(tc.n))
		require.NoError(t, err)
		require.True(t, bytes.Equal(data, got), "case %d", i)
	}
}

func TestRoundTripDirStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := storage.NewDirStore(root)
	require.NoError(t, err)

	f := openFile(t, store, "feed.db")
	data := randomBytes(7, 9000)
	_, err = f.Write(ctx, 100, data)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, "data", "0_feed.db"))
	require.NoError(t, err)
	require.Len(t, raw, 4004)
	require.Equal(t, uint32(4000), binary.BigEndian.Uint32(raw))

	stats, err := os.ReadFile(filepath.Join(root, "feed.db.stats.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"size":9100}`, string(stats))

	// reopen from disk
	require.NoError(t, f.Close())
	g := openFile(t, store, "feed.db")
	st, err := g.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(9100), st.Size)

	got, err := g.Read(ctx, 100, 9000)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestOverlappingWrites(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	_, err := f.Write(ctx, 0, bytes.Repeat([]byte{'a'}, 9000))
	require.NoError(t, err)
	_, err = f.Write(ctx, 3990, bytes.Repeat([]byte{'b'}, 20))
	require.NoError(t, err)

	got, err := f.Read(ctx, 3980, 40)
	require.NoError(t, err)
	want := append(bytes.Repeat([]byte{'a'}, 10), bytes.Repeat([]byte{'b'}, 20)...)
	want = append(want, bytes.Repeat([]byte{'a'}, 10)...)
	require.Equal(t, want, got)
}

func TestWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")
	data := randomBytes(3, 5000)

	_, err := f.Write(ctx, 2500, data)
	require.NoError(t, err)
	first, err := f.Stat()
	require.NoError(t, err)

	_, err = f.Write(ctx, 2500, data)
	require.NoError(t, err)
	second, err := f.Stat()
	require.NoError(t, err)

	require.Equal(t, first, second)
	got, err := f.Read(ctx, 2500, 5000)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSizeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	writes := []struct {
		off int64
		n   int
	}{
		{100, 10},
		{0, 5},
		{8000, 1},
		{50, 50},
		{8001, 0},
	}

	var prev int64
	for _, w := range writes {
		_, err := f.Write(ctx, w.off, make([]byte, w.n))
		require.NoError(t, err)

		stats, err := f.Stat()
		require.NoError(t, err)

		want := prev
		if end := w.off + int64(w.n); end > want {
			want = end
		}
		require.Equal(t, want, stats.Size)
		require.GreaterOrEqual(t, stats.Size, prev)
		prev = stats.Size
	}
}

func TestWriteSixThousandBytes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	data := randomBytes(1, 6000)

	_, err := f.Write(ctx, 0, data)
	require.NoError(t, err)

	require.Equal(t, []string{"data/0_feed", "data/1_feed"}, pageSaves(store))
	require.Equal(t, data[:4000], loadPayload(t, store, "data/0_feed"))

	page1 := loadPayload(t, store, "data/1_feed")
	require.Len(t, page1, 4000)
	require.Equal(t, data[4000:], page1[:2000])
	require.Equal(t, make([]byte, 2000), page1[2000:])

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(6000), stats.Size)
}

func TestWriteAcrossBoundary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")

	_, err := f.Write(ctx, 3995, []byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, []string{"data/0_feed", "data/1_feed"}, pageSaves(store))

	page0 := loadPayload(t, store, "data/0_feed")
	require.Equal(t, []byte("01234"), page0[3995:])
	require.Equal(t, make([]byte, 3995), page0[:3995])

	page1 := loadPayload(t, store, "data/1_feed")
	require.Equal(t, []byte("56789"), page1[:5])
}

func TestWriteOneByteBeforeBoundary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")

	_, err := f.Write(ctx, 3999, []byte{'x', 'y'})
	require.NoError(t, err)
	require.Len(t, pageSaves(store), 2)
	require.Equal(t, byte('x'), loadPayload(t, store, "data/0_feed")[3999])
	require.Equal(t, byte('y'), loadPayload(t, store, "data/1_feed")[0])
}

func TestReadMissingPageIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	got, err := f.Read(ctx, 0, 100)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	result, err := f.ReadPartial(ctx, 0, 100)
	require.NoError(t, err)
	require.False(t, result.Complete())
	require.Equal(t, int64(0), result.Fault.Page)
	require.ErrorIs(t, result.Fault, storage.ErrNotFound)
}

func TestReadStopsAtFirstFault(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	data := randomBytes(9, 12000)

	_, err := f.Write(ctx, 0, data)
	require.NoError(t, err)

	store.FailLoad("data/1_feed", errBoom)

	got, err := f.Read(ctx, 0, 12000)
	require.NoError(t, err)
	require.Equal(t, data[:4000], got)

	result, err := f.ReadPartial(ctx, 100, 12000)
	require.NoError(t, err)
	require.Equal(t, data[100:4000], result.Data)
	require.ErrorIs(t, result.Fault, errBoom)
	require.Equal(t, "data/1_feed", result.Fault.Name)
}

func TestReadCorruptPage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	require.NoError(t, store.SaveObject(ctx, "data/0_feed", []byte{1, 2}))

	result, err := f.ReadPartial(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, result.Data)
	require.ErrorIs(t, result.Fault, ErrShortPage)
}

func TestReadNeverPastStoredLength(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")

	// prefix says 10 bytes, the object carries a full page of junk
	raw := make([]byte, 4+4000)
	binary.BigEndian.PutUint32(raw, 10)
	for i := 4; i < len(raw); i++ {
		raw[i] = 0xee
	}
	copy(raw[4:], "0123456789")
	require.NoError(t, store.SaveObject(ctx, "data/0_feed", raw))

	got, err := f.Read(ctx, 0, 4000)
	require.NoError(t, err)
	require.Equal(t, []byte("0123456789"), got)

	got, err = f.Read(ctx, 5, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("56789"), got)

	got, err = f.Read(ctx, 20, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWriteOverShortPageKeepsPayload(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	require.NoError(t, store.SaveObject(ctx, "data/0_feed", EncodePage([]byte("hello"))))

	_, err := f.Write(ctx, 10, []byte("world"))
	require.NoError(t, err)

	payload := loadPayload(t, store, "data/0_feed")
	require.Len(t, payload, 4000)
	require.Equal(t, []byte("hello\x00\x00\x00\x00\x00world"), payload[:15])
}

func TestWritePageSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	store.FailSave("data/1_feed", errBoom)
	data := randomBytes(5, 10000)

	n, err := f.Write(ctx, 0, data)
	require.NoError(t, err)
	require.Equal(t, 10000, n)
	require.Equal(t, []string{"data/0_feed", "data/1_feed", "data/2_feed"}, pageSaves(store))

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(10000), stats.Size)

	got, err := f.Read(ctx, 0, 10000)
	require.NoError(t, err)
	require.Equal(t, data[:4000], got)

	store.FailSave("data/1_feed", nil)
	store.FailSave("data/2_feed", errBoom)
	result, err := f.WriteReport(ctx, 4000, data[4000:])
	require.NoError(t, err)
	require.Equal(t, 6000, result.N)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(2), result.Failed[0].Page)
	require.ErrorIs(t, result.Failed[0].Err, errBoom)
}

func TestWriteLoadFailureStartsFromZeros(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")

	_, err := f.Write(ctx, 0, []byte("abcdef"))
	require.NoError(t, err)

	store.FailLoad("data/0_feed", errBoom)
	_, err = f.Write(ctx, 3, []byte("X"))
	require.NoError(t, err)
	store.FailLoad("data/0_feed", nil)

	got, err := f.Read(ctx, 0, 6)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 'X', 0, 0}, got)
}

func TestWriteStatsFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")
	store.FailSave("feed.stats.json", errBoom)

	n, err := f.Write(ctx, 0, []byte("abc"))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 3, n)

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Size)
}

func TestStatePolicy(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := New(store, "feed", WithLogger(quietLogger()))

	_, err := f.Stat()
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = f.Write(ctx, 0, []byte("x"))
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, f.Open(ctx))
	require.NoError(t, f.Open(ctx))
	_, err = f.Write(ctx, 0, []byte("abc"))
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.Equal(t, StateClosed, f.State())
	_, err = f.Read(ctx, 0, 3)
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, f.Open(ctx))
	got, err := f.Read(ctx, 0, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestInvalidRange(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	_, err := f.Read(ctx, -1, 3)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.Read(ctx, 0, -3)
	require.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.Write(ctx, -1, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidRange)

	got, err := f.Read(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadHugeLengthOnEmptyStream(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	got, err := f.Read(ctx, 0, math.MaxInt64)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	_, err = f.Write(ctx, 0, []byte("abc"))
	require.NoError(t, err)
	got, err = f.Read(ctx, 1, math.MaxInt64)
	require.NoError(t, err)
	require.Len(t, got, 3999)
	require.Equal(t, []byte("bc"), got[:2])
}

func TestWriteOffsetOverflow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed")

	_, err := f.Write(ctx, math.MaxInt64-1, []byte("abc"))
	require.ErrorIs(t, err, ErrInvalidRange)
	require.Empty(t, pageSaves(store))

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Zero(t, stats.Size)
}

func TestDeleteLeavesPages(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	require.NoError(t, store.SaveObject(ctx, "feed", []byte("marker")))

	f := openFile(t, store, "feed")
	_, err := f.Write(ctx, 0, randomBytes(2, 5000))
	require.NoError(t, err)

	require.NoError(t, f.Delete(ctx))
	require.Equal(t, []string{"data/0_feed", "data/1_feed", "feed.stats.json"}, store.Names())
}

func TestDeleteBeforeOpen(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()

	f := New(store, "feed", WithLogger(quietLogger()))
	require.NoError(t, f.Delete(ctx))
	require.Equal(t, StateUnopened, f.State())
}

func TestDeleteFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	store.FailSave("feed", errBoom)

	f := openFile(t, store, "feed")
	require.ErrorIs(t, f.Delete(ctx), errBoom)
}

func TestDeletePurge(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	require.NoError(t, store.SaveObject(ctx, "other.stats.json", []byte(`{"size":1}`)))

	f := openFile(t, store, "feed", WithPurge(true))
	_, err := f.Write(ctx, 0, randomBytes(4, 8001))
	require.NoError(t, err)
	require.Len(t, pageSaves(store), 3)

	require.NoError(t, f.Delete(ctx))
	require.Equal(t, []string{"other.stats.json"}, store.Names())

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Zero(t, stats.Size)
}

func TestDeletePurgeWithoutOpen(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()

	w := openFile(t, store, "feed")
	_, err := w.Write(ctx, 0, randomBytes(6, 4500))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f := New(store, "feed", WithLogger(quietLogger()), WithPurge(true))
	require.NoError(t, f.Delete(ctx))
	require.Empty(t, store.Names())
}

func TestSmallPageSize(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore()
	f := openFile(t, store, "feed", WithPageSize(8))

	_, err := f.Write(ctx, 5, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, []string{"data/0_feed", "data/1_feed"}, pageSaves(store))

	got, err := f.Read(ctx, 5, 11)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
	require.Equal(t, paging.PageName("feed", 1), "data/1_feed")
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	f := openFile(t, storage.NewMemStore(), "feed")

	const workers = 8
	const span = 3000
	data := randomBytes(11, workers*span)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off := i * span
			_, err := f.Write(ctx, int64(off), data[off:off+span])
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.Read(ctx, 0, int64(len(data)))
	require.NoError(t, err)
	require.Equal(t, data, got)

	stats, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), stats.Size)
}
