package fetcher

import (
	"context"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/piggyback"
)

// PiggybackFetcher returns the data other hosts delivered for a host.
type PiggybackFetcher struct {
	store    *piggyback.Store
	hostname string
	maxAge   time.Duration
}

// NewPiggybackFetcher reads the piggyback data of hostname from store,
// ignoring files older than maxAge.
func NewPiggybackFetcher(store *piggyback.Store, hostname string, maxAge time.Duration) *PiggybackFetcher {
	return &PiggybackFetcher{store: store, hostname: hostname, maxAge: maxAge}
}

func (f *PiggybackFetcher) Fetch(ctx context.Context, _ models.Mode) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := f.store.Read(f.hostname, f.maxAge)
	return data, err
}

func (f *PiggybackFetcher) Close() error { return nil }
