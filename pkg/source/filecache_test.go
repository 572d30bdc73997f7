package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/fetcher"
	"github.com/pershinghar/go-host-datasource/pkg/models"
)

func TestConfigureGlobalDisabledWins(t *testing.T) {
	for _, ft := range []models.FetcherType{models.FetcherAgent, models.FetcherSNMP, models.FetcherPiggyback} {
		policy := &config.CachePolicy{}
		policy.SetDisabled(true)
		c := NewFileCacheConfigurer("/tmp/cache", ft, nil, false, policy)

		assert.True(t, c.Configure().Disabled, ft)
	}
}

func TestConfigureTransportDisabled(t *testing.T) {
	policy := &config.CachePolicy{}
	policy.SetSNMPDisabled(true)

	assert.True(t, NewFileCacheConfigurer("p", models.FetcherSNMP, nil, false, policy).Configure().Disabled)
	assert.False(t, NewFileCacheConfigurer("p", models.FetcherAgent, nil, false, policy).Configure().Disabled)

	policy = &config.CachePolicy{}
	policy.SetAgentDisabled(true)
	assert.False(t, NewFileCacheConfigurer("p", models.FetcherSNMP, nil, false, policy).Configure().Disabled)
	assert.True(t, NewFileCacheConfigurer("p", models.FetcherAgent, nil, false, policy).Configure().Disabled)
}

func TestConfigureReadsPolicyLate(t *testing.T) {
	policy := &config.CachePolicy{}
	age := 90
	c := NewFileCacheConfigurer("/var/cache/agent/host1", models.FetcherAgent, &age, true, policy)
	assert.False(t, c.Configure().Disabled)

	policy.SetDisabled(true)
	policy.SetCacheOpts(true)
	got := c.Configure()
	assert.Equal(t, "/var/cache/agent/host1", got.Path)
	assert.True(t, got.Disabled)
	assert.True(t, got.UseOutdated)
	assert.True(t, got.Simulation)
	assert.Equal(t, 90, *got.MaxAge)

	*got.MaxAge = 1
	assert.Equal(t, 90, *c.Configure().MaxAge)
}

func TestRecommendedCacheStillHonorsMaxAge(t *testing.T) {
	policy := &config.CachePolicy{}
	policy.ResetMaybe()
	require.True(t, policy.Snapshot().Maybe)

	path := filepath.Join(t.TempDir(), "agent", "host1")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	age := 60
	cache := NewFileCacheConfigurer(path, models.FetcherAgent, &age, false, policy).Configure()
	assert.False(t, cache.UseOutdated)

	calls := 0
	live := fetcher.Func[[]byte](func(context.Context, models.Mode) ([]byte, error) {
		calls++
		return []byte("live\n"), nil
	})
	raw, err := fetcher.NewCachedFetcher[[]byte](cache, live, fetcher.BytesCodec{}, nil).Fetch(context.Background(), models.ModeChecking)

	require.NoError(t, err)
	assert.Equal(t, "live\n", string(raw))
	assert.Equal(t, 1, calls)
}
