package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-host-datasource/pkg/models"
)

type countingFetcher struct {
	data   []byte
	err    error
	calls  int
	closed bool
}

func (f *countingFetcher) Fetch(context.Context, models.Mode) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func (f *countingFetcher) Close() error {
	f.closed = true
	return nil
}

func intPtr(v int) *int { return &v }

func writeCache(t *testing.T, path, data string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestCachedFetcherUsesFreshCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent", "host1")
	writeCache(t, path, "cached\n", time.Second)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60)}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "cached\n", string(raw))
	assert.Zero(t, next.calls)
}

func TestCachedFetcherRefreshesOutdatedCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	writeCache(t, path, "cached\n", time.Hour)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60)}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "live\n", string(raw))
	assert.Equal(t, 1, next.calls)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "live\n", string(written))
}

func TestCachedFetcherUseOutdated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	writeCache(t, path, "cached\n", time.Hour)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60), UseOutdated: true}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "cached\n", string(raw))
	assert.Zero(t, next.calls)
}

func TestCachedFetcherForceSectionsSkipsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	writeCache(t, path, "cached\n", 0)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60)}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeForceSections)

	require.NoError(t, err)
	assert.Equal(t, "live\n", string(raw))
}

func TestCachedFetcherDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	writeCache(t, path, "cached\n", 0)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60), Disabled: true}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "live\n", string(raw))

	kept, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cached\n", string(kept))
}

func TestCachedFetcherSimulation(t *testing.T) {
	dir := t.TempDir()
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: filepath.Join(dir, "missing"), Simulation: true}, next, BytesCodec{}, nil)
	_, err := f.Fetch(context.Background(), models.ModeChecking)
	assert.ErrorIs(t, err, ErrNoCacheFile)
	assert.Zero(t, next.calls)

	path := filepath.Join(dir, "old")
	writeCache(t, path, "cached\n", 24*time.Hour)
	f = NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, Simulation: true}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeForceSections)
	require.NoError(t, err)
	assert.Equal(t, "cached\n", string(raw))
}

func TestCachedFetcherPassesErrorsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	boom := errors.New("boom")
	next := &countingFetcher{err: boom}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60)}, next, BytesCodec{}, nil)
	_, err := f.Fetch(context.Background(), models.ModeChecking)
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, path)

	require.NoError(t, f.Close())
	assert.True(t, next.closed)
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec[map[string][]string]{}
	data, err := codec.Encode(map[string][]string{"if": {"1", "2"}})
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, decoded["if"])
}

func TestCachedFetcherRefreshesOutdatedCacheWithoutUseOutdated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host1")
	writeCache(t, path, "stale\n", 2*time.Hour)
	next := &countingFetcher{data: []byte("live\n")}

	f := NewCachedFetcher[[]byte](models.FileCacheConfig{Path: path, MaxAge: intPtr(60)}, next, BytesCodec{}, nil)
	raw, err := f.Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "live\n", string(raw))
	assert.Equal(t, 1, next.calls)
}
