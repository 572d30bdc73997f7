package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/models"
)

// ErrNoCacheFile is returned in simulation mode when there is nothing cached.
var ErrNoCacheFile = errors.New("no cache file")

// Codec converts raw data to the bytes of a cache file and back.
type Codec[R any] interface {
	Encode(raw R) ([]byte, error)
	Decode(data []byte) (R, error)
}

// BytesCodec stores raw bytes as they are.
type BytesCodec struct{}

func (BytesCodec) Encode(raw []byte) ([]byte, error) { return raw, nil }

func (BytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

// JSONCodec stores structured raw data, such as SNMP tables, as JSON.
type JSONCodec[R any] struct{}

func (JSONCodec[R]) Encode(raw R) ([]byte, error) { return json.Marshal(raw) }

func (JSONCodec[R]) Decode(data []byte) (R, error) {
	var raw R
	err := json.Unmarshal(data, &raw)
	return raw, err
}

// CachedFetcher puts a file cache in front of another fetcher.
//
// Reading the cache requires it to be enabled and the mode not to force
// fresh sections. A cache file younger than max age is used; with
// use_outdated any age will do. In simulation mode the cache is the
// only source. Freshly fetched data is written back unless caching is disabled.
type CachedFetcher[R any] struct {
	config models.FileCacheConfig
	next   Fetcher[R]
	codec  Codec[R]
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedFetcher wraps next with the cache described by config.
func NewCachedFetcher[R any](config models.FileCacheConfig, next Fetcher[R], codec Codec[R], logger *slog.Logger) *CachedFetcher[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher[R]{config: config, next: next, codec: codec, logger: logger, now: time.Now}
}

func (f *CachedFetcher[R]) Fetch(ctx context.Context, mode models.Mode) (R, error) {
	if raw, ok := f.read(mode); ok {
		return raw, nil
	}
	if f.config.Simulation {
		var zero R
		return zero, fmt.Errorf("simulation mode: %w at %s", ErrNoCacheFile, f.config.Path)
	}

	raw, err := f.next.Fetch(ctx, mode)
	if err != nil {
		return raw, err
	}
	f.write(raw)
	return raw, nil
}

func (f *CachedFetcher[R]) Close() error {
	return f.next.Close()
}

func (f *CachedFetcher[R]) mayRead(mode models.Mode) bool {
	if f.config.Disabled || f.config.Path == "" {
		return false
	}
	if f.config.Simulation {
		return true
	}
	return mode != models.ModeForceSections
}

func (f *CachedFetcher[R]) read(mode models.Mode) (R, bool) {
	var zero R
	if !f.mayRead(mode) {
		return zero, false
	}

	info, err := os.Stat(f.config.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Debug("Failed to stat cache file", "path", f.config.Path, "error", err)
		}
		return zero, false
	}

	age := f.now().Sub(info.ModTime())
	fresh := f.config.MaxAge != nil && age <= time.Duration(*f.config.MaxAge)*time.Second
	if !fresh && !f.config.UseOutdated && !f.config.Simulation {
		f.logger.Debug("Cache file is too old", "path", f.config.Path, "age", age.Round(time.Second))
		return zero, false
	}

	data, err := os.ReadFile(f.config.Path)
	if err != nil {
		f.logger.Debug("Failed to read cache file", "path", f.config.Path, "error", err)
		return zero, false
	}
	raw, err := f.codec.Decode(data)
	if err != nil {
		f.logger.Debug("Failed to decode cache file", "path", f.config.Path, "error", err)
		return zero, false
	}
	f.logger.Debug("Using data from cache file", "path", f.config.Path, "age", age.Round(time.Second))
	return raw, true
}

func (f *CachedFetcher[R]) write(raw R) {
	if f.config.Disabled || f.config.Simulation || f.config.Path == "" {
		return
	}
	data, err := f.codec.Encode(raw)
	if err != nil {
		f.logger.Debug("Failed to encode cache file", "path", f.config.Path, "error", err)
		return
	}
	if err := writeFileAtomic(f.config.Path, data); err != nil {
		f.logger.Debug("Failed to write cache file", "path", f.config.Path, "error", err)
		return
	}
	f.logger.Debug("Wrote cache file", "path", f.config.Path, "bytes", len(data))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".new*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
