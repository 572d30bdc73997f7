// Package fetcher gets raw data from hosts. A fetcher is created for one
// fetch and closed afterwards.
package fetcher

import (
	"context"

	"github.com/pershinghar/go-host-datasource/pkg/models"
)

// Fetcher returns the raw data of a host. It may fail.
type Fetcher[R any] interface {
	Fetch(ctx context.Context, mode models.Mode) (R, error)
	Close() error
}

// Factory creates a fetcher honoring a file cache configuration.
type Factory[R any] func(cache models.FileCacheConfig) (Fetcher[R], error)

// Func adapts a function to a Fetcher with nothing to release.
type Func[R any] func(ctx context.Context, mode models.Mode) (R, error)

func (f Func[R]) Fetch(ctx context.Context, mode models.Mode) (R, error) { return f(ctx, mode) }

func (f Func[R]) Close() error { return nil }
