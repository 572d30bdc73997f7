package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/cputrack"
	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/fetcher"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/parser"
	"github.com/pershinghar/go-host-datasource/pkg/piggyback"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
	"github.com/pershinghar/go-host-datasource/pkg/summary"
)

type fakeFetcher struct {
	raw    []byte
	err    error
	panic  any
	mode   models.Mode
	closed bool
}

func (f *fakeFetcher) Fetch(_ context.Context, mode models.Mode) ([]byte, error) {
	f.mode = mode
	if f.panic != nil {
		panic(f.panic)
	}
	return f.raw, f.err
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

func testOptions(t *testing.T) *config.Options {
	t.Helper()
	opts := config.NewOptions()
	dir := t.TempDir()
	opts.Paths = config.Paths{
		VarDir:       dir,
		CacheDir:     filepath.Join(dir, "cache"),
		PiggybackDir: filepath.Join(dir, "piggyback"),
	}
	return opts
}

func newTestSource(t *testing.T, f *fakeFetcher, host *config.HostConfig, opts *config.Options) *Source[[]byte] {
	t.Helper()
	s, err := New(Params[[]byte]{
		Hostname:    "host1",
		Address:     "10.0.0.1",
		SourceType:  models.SourceHost,
		FetcherType: models.FetcherAgent,
		Description: "test agent",
		ID:          "agent",
		Factory: func(models.FileCacheConfig) (fetcher.Fetcher[[]byte], error) {
			return f, nil
		},
		Parser:  &parser.AgentParser{},
		Reducer: &summary.AgentReducer{},
	}, host, opts, nil, nil)
	require.NoError(t, err)
	return s
}

func TestSourcePaths(t *testing.T) {
	opts := testOptions(t)
	s := newTestSource(t, &fakeFetcher{}, nil, opts)

	assert.Equal(t, filepath.Join(opts.Paths.CacheDir, "agent", "host1"), s.CachePath())
	assert.Equal(t, filepath.Join(opts.Paths.VarDir, "persisted_sections", "agent", "host1"), s.PersistedSectionsPath())
	assert.Equal(t, s.CachePath(), s.FileCache().Path())
	assert.Equal(t, "agent", s.CPUTrackingID())
}

func TestSourceNeedsParserAndReducer(t *testing.T) {
	_, err := New(Params[[]byte]{Hostname: "host1", ID: "agent"}, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Params[[]byte]{ID: "agent", Parser: &parser.AgentParser{}, Reducer: summary.SNMPReducer{}}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSourceExitSpecFromHostConfig(t *testing.T) {
	cfg := &config.File{ExitSpec: config.ExitSpecRules{
		Overall:    models.ExitSpec{"timeout": 1},
		Individual: map[string]models.ExitSpec{"agent": {"connection": 0}},
	}}
	s := newTestSource(t, &fakeFetcher{}, cfg.MakeHostConfig("host1"), testOptions(t))

	assert.Equal(t, models.ExitSpec{"timeout": 1, "connection": 0}, s.ExitSpec())
}

func TestFetchClosesFetcherOnError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	s := newTestSource(t, f, nil, testOptions(t))

	raw := s.Fetch(context.Background())

	require.True(t, raw.IsErr())
	assert.EqualError(t, raw.UnwrapErr(), "connection refused")
	assert.True(t, f.closed)
	assert.Equal(t, models.ModeChecking, f.mode)
}

func TestFetchRecoversPanic(t *testing.T) {
	f := &fakeFetcher{panic: "socket exploded"}
	s := newTestSource(t, f, nil, testOptions(t))

	raw := s.Fetch(context.Background())

	require.True(t, raw.IsErr())
	assert.EqualError(t, raw.UnwrapErr(), "socket exploded")
	assert.True(t, f.closed)
}

func TestFetchFactoryError(t *testing.T) {
	s, err := New(Params[[]byte]{
		Hostname: "host1",
		ID:       "agent",
		Factory: func(models.FileCacheConfig) (fetcher.Fetcher[[]byte], error) {
			return nil, errors.New("no route")
		},
		Parser:  &parser.AgentParser{},
		Reducer: &summary.AgentReducer{},
	}, nil, testOptions(t), nil, nil)
	require.NoError(t, err)

	raw := s.Fetch(context.Background())
	require.True(t, raw.IsErr())
	assert.ErrorContains(t, raw.UnwrapErr(), "no route")
}

func TestFetchWithoutTransportYieldsDefault(t *testing.T) {
	s, err := New(Params[[]byte]{
		Hostname:       "host1",
		ID:             "management",
		DefaultRawData: []byte("<<<none>>>\n"),
		Parser:         &parser.AgentParser{},
		Reducer:        summary.SNMPReducer{},
	}, nil, testOptions(t), nil, nil)
	require.NoError(t, err)

	raw := s.Fetch(context.Background())
	require.True(t, raw.IsOK())
	assert.Equal(t, "<<<none>>>\n", string(raw.Unwrap()))
}

func TestRunTimeoutUsesExitSpec(t *testing.T) {
	timeout := &failure.TimeoutError{Op: "fetching agent data", After: 5 * time.Second}
	cfg := &config.File{ExitSpec: config.ExitSpecRules{Overall: models.ExitSpec{"timeout": 1}}}
	s := newTestSource(t, &fakeFetcher{err: timeout}, cfg.MakeHostConfig("host1"), testOptions(t))

	hs, res := s.Run(context.Background())

	assert.True(t, hs.IsErr())
	assert.Equal(t, models.ServiceCheckResult{
		Status:  1,
		Output:  timeout.Error() + "(!)",
		Metrics: []models.Metric{},
	}, res)
}

func TestRunPromotesPersistedSection(t *testing.T) {
	opts := testOptions(t)
	s := newTestSource(t, &fakeFetcher{raw: []byte("<<<A>>>\nrow 1\nrow 2\n")}, nil, opts)

	now := time.Now().Unix()
	persisted := sections.PersistedSections{
		"B": {From: now - 60, Until: now + 3600, Content: sections.SectionContent{{"old", "row"}}},
	}
	require.NoError(t, sections.NewStore(s.PersistedSectionsPath(), nil).Store(persisted))

	hs, res := s.Run(context.Background())

	require.True(t, hs.IsOK())
	got := hs.Unwrap()
	assert.Equal(t, sections.SectionContent{{"row", "1"}, {"row", "2"}}, got.Sections["A"])
	assert.Equal(t, sections.SectionContent{{"old", "row"}}, got.Sections["B"])
	assert.Equal(t, sections.CacheInfo{"B": {CachedAt: now - 60, Interval: 3660}}, got.CacheInfo)
	assert.Equal(t, 0, res.Status)
}

func TestRunDropsOutdatedPersistedSectionUnlessAllowed(t *testing.T) {
	opts := testOptions(t)
	s := newTestSource(t, &fakeFetcher{raw: []byte("<<<A>>>\nrow\n")}, nil, opts)

	now := time.Now().Unix()
	persisted := sections.PersistedSections{
		"B": {From: now - 7200, Until: now - 3600, Content: sections.SectionContent{{"old"}}},
	}
	store := sections.NewStore(s.PersistedSectionsPath(), nil)
	require.NoError(t, store.Store(persisted))

	hs, _ := s.Run(context.Background())
	require.True(t, hs.IsOK())
	assert.NotContains(t, hs.Unwrap().Sections, sections.SectionName("B"))

	require.NoError(t, store.Store(persisted))
	opts.UseOutdatedPersistedSections()
	hs, _ = s.Run(context.Background())
	require.True(t, hs.IsOK())
	assert.Contains(t, hs.Unwrap().Sections, sections.SectionName("B"))
}

func TestSectionsOrDefault(t *testing.T) {
	s := newTestSource(t, &fakeFetcher{}, nil, testOptions(t))

	def := s.SectionsOrDefault(result.Err[*sections.HostSections](errors.New("boom")))
	assert.Same(t, s.DefaultHostSections(), def)

	hs := sections.New()
	assert.Same(t, hs, s.SectionsOrDefault(result.OK(hs)))
}

func TestPiggybackSource(t *testing.T) {
	opts := testOptions(t)
	store := piggyback.NewStore(opts.Paths.PiggybackDir, nil)
	require.NoError(t, store.Write("host1", "vm-host", []string{"<<<uptime>>>", "42"}))

	host := (&config.File{}).MakeHostConfig("host1")
	s, err := NewPiggybackSource(host, opts, store, time.Hour, cputrack.New(), nil)
	require.NoError(t, err)

	hs, res := s.Run(context.Background())
	require.True(t, hs.IsOK())
	assert.Equal(t, sections.SectionContent{{"42"}}, hs.Unwrap().Sections["uptime"])
	assert.Equal(t, 0, res.Status)
	assert.Contains(t, res.Output, "'vm-host'")
}

func TestPiggybackSourceWithoutData(t *testing.T) {
	opts := testOptions(t)
	store := piggyback.NewStore(opts.Paths.PiggybackDir, nil)
	s, err := NewPiggybackSource((&config.File{}).MakeHostConfig("host1"), opts, store, time.Hour, nil, nil)
	require.NoError(t, err)

	_, res := s.Run(context.Background())
	assert.Equal(t, models.ServiceCheckResult{Status: 0, Output: "No piggyback data", Metrics: []models.Metric{}}, res)
}

func TestAgentSourceNeedsSSH(t *testing.T) {
	_, err := NewAgentSource((&config.File{}).MakeHostConfig("host1"), testOptions(t), nil, nil)
	assert.Error(t, err)
}

func TestSNMPSourceUsesFileCache(t *testing.T) {
	opts := testOptions(t)
	calls := 0
	dial := func() (fetcher.Fetcher[parser.SNMPRawData], error) {
		return fetcher.Func[parser.SNMPRawData](func(context.Context, models.Mode) (parser.SNMPRawData, error) {
			calls++
			return parser.SNMPRawData{"if": {{"1", "eth0"}}}, nil
		}), nil
	}
	cfg := &config.File{Hosts: []config.Host{{Name: "switch1", Address: "10.0.0.2", MaxCacheAge: map[string]int{"snmp": 600}}}}

	s, err := NewSNMPSource(cfg.MakeHostConfig("switch1"), opts, dial, nil, nil)
	require.NoError(t, err)

	for range 2 {
		hs, res := s.Run(context.Background())
		require.True(t, hs.IsOK())
		assert.Equal(t, sections.SectionContent{{"1", "eth0"}}, hs.Unwrap().Sections["if"])
		assert.Equal(t, "Success", res.Output)
	}
	assert.Equal(t, 1, calls)
	assert.FileExists(t, s.CachePath())
}
