// Package source runs one data source of a host: fetch raw data, turn it
// into host sections and summarize the outcome as a check result.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/cputrack"
	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/fetcher"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/parser"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
	"github.com/pershinghar/go-host-datasource/pkg/summary"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

// Params describe a source. Factory, Parser and Reducer are the transport
// specific parts; a nil Factory means the source has no transport and
// always yields DefaultRawData.
type Params[R any] struct {
	Hostname    string
	Address     string
	Mode        models.Mode
	SourceType  models.SourceType
	FetcherType models.FetcherType
	Description string

	DefaultRawData      R
	DefaultHostSections *sections.HostSections

	ID            string
	CPUTrackingID string
	// CacheDir defaults to Options.Paths.CacheDir, PersistedDir to the
	// persisted sections directory below the var dir.
	CacheDir     string
	PersistedDir string

	Factory fetcher.Factory[R]
	Parser  parser.SectionParser[R]
	Reducer summary.Reducer
}

// Source is an immutable data source of one host.
type Source[R any] struct {
	hostname    string
	address     string
	mode        models.Mode
	sourceType  models.SourceType
	fetcherType models.FetcherType
	description string

	defaultRawData      R
	defaultHostSections *sections.HostSections

	id            string
	cpuTrackingID string
	cacheDir      string
	persistedDir  string

	exitSpec   models.ExitSpec
	fileCache  *FileCacheConfigurer
	factory    fetcher.Factory[R]
	checker    *Checker[R]
	summarizer *summary.Summarizer
	logger     *slog.Logger
}

// New creates a source for host. The logger is named after the source id.
func New[R any](p Params[R], host *config.HostConfig, options *config.Options, tracker *cputrack.Tracker, logger *slog.Logger) (*Source[R], error) {
	if p.Hostname == "" {
		return nil, errors.New("source needs a hostname")
	}
	if p.ID == "" {
		return nil, errors.New("source needs an id")
	}
	if p.Parser == nil || p.Reducer == nil {
		return nil, fmt.Errorf("source %s: parser and reducer are required", p.ID)
	}
	if host == nil {
		host = (&config.File{}).MakeHostConfig(p.Hostname)
	}
	if options == nil {
		options = config.NewOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if p.CPUTrackingID == "" {
		p.CPUTrackingID = p.ID
	}
	if p.CacheDir == "" {
		p.CacheDir = options.Paths.CacheDir
	}
	if p.PersistedDir == "" {
		p.PersistedDir = options.Paths.PersistedSectionsDir()
	}
	if p.DefaultHostSections == nil {
		p.DefaultHostSections = sections.New()
	}

	s := &Source[R]{
		hostname:            p.Hostname,
		address:             p.Address,
		mode:                p.Mode,
		sourceType:          p.SourceType,
		fetcherType:         p.FetcherType,
		description:         p.Description,
		defaultRawData:      p.DefaultRawData,
		defaultHostSections: p.DefaultHostSections,
		id:                  p.ID,
		cpuTrackingID:       p.CPUTrackingID,
		cacheDir:            p.CacheDir,
		persistedDir:        p.PersistedDir,
		exitSpec:            host.ExitCodeSpec(p.ID),
		factory:             p.Factory,
		logger:              util.SourceLogger(logger, p.ID).With("host", p.Hostname),
	}
	s.fileCache = NewFileCacheConfigurer(s.CachePath(), p.FetcherType, host.MaxCacheAgeOf(p.ID), options.Simulation, options.Cache)
	s.checker = NewChecker(parser.New(p.Hostname, p.Parser, s.logger), s.PersistedSectionsPath(), options, tracker, p.CPUTrackingID, s.logger)
	s.summarizer = summary.New(s.exitSpec, p.Reducer)
	return s, nil
}

func (s *Source[R]) Hostname() string                { return s.hostname }
func (s *Source[R]) Address() string                 { return s.address }
func (s *Source[R]) Mode() models.Mode               { return s.mode }
func (s *Source[R]) SourceType() models.SourceType   { return s.sourceType }
func (s *Source[R]) FetcherType() models.FetcherType { return s.fetcherType }
func (s *Source[R]) Description() string             { return s.description }
func (s *Source[R]) ID() string                      { return s.id }
func (s *Source[R]) CPUTrackingID() string           { return s.cpuTrackingID }
func (s *Source[R]) ExitSpec() models.ExitSpec       { return s.exitSpec }
func (s *Source[R]) FileCache() *FileCacheConfigurer { return s.fileCache }
func (s *Source[R]) DefaultRawData() R               { return s.defaultRawData }

// DefaultHostSections are the sections to use when the source failed.
func (s *Source[R]) DefaultHostSections() *sections.HostSections { return s.defaultHostSections }

// CachePath is cacheDir/id/hostname.
func (s *Source[R]) CachePath() string {
	return filepath.Join(s.cacheDir, s.id, s.hostname)
}

// PersistedSectionsPath is persistedDir/id/hostname.
func (s *Source[R]) PersistedSectionsPath() string {
	return filepath.Join(s.persistedDir, s.id, s.hostname)
}

func (s *Source[R]) String() string {
	return fmt.Sprintf("%s(%s, %s, %s)", s.id, s.hostname, s.address, s.description)
}

// Fetch creates a fetcher, fetches once and closes the fetcher again. Errors
// and panics of the fetcher become the error result.
func (s *Source[R]) Fetch(ctx context.Context) (res result.Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = result.Err[R](failure.FromPanic(r))
		}
	}()

	if s.factory == nil {
		return result.OK(s.defaultRawData)
	}

	f, err := s.factory(s.fileCache.Configure())
	if err != nil {
		return result.Err[R](fmt.Errorf("creating %s fetcher: %w", s.fetcherType, err))
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Debug("Failed to close fetcher", "error", err)
		}
	}()

	s.logger.Debug("Fetching", "mode", s.mode.String())
	raw, err := f.Fetch(ctx, s.mode)
	if err != nil {
		return result.Err[R](err)
	}
	return result.OK(raw)
}

// Parse turns the fetch result into host sections.
func (s *Source[R]) Parse(raw result.Result[R]) result.Result[*sections.HostSections] {
	return s.checker.Check(raw)
}

func (s *Source[R]) Summarize(hs result.Result[*sections.HostSections]) models.ServiceCheckResult {
	return s.summarizer.Summarize(hs)
}

// Run fetches, parses and summarizes. It always returns a check result.
func (s *Source[R]) Run(ctx context.Context) (result.Result[*sections.HostSections], models.ServiceCheckResult) {
	hs := s.Parse(s.Fetch(ctx))
	return hs, s.Summarize(hs)
}

// SectionsOrDefault returns the sections of hs, or the default host sections
// when hs is an error.
func (s *Source[R]) SectionsOrDefault(hs result.Result[*sections.HostSections]) *sections.HostSections {
	if hs.IsErr() {
		return s.defaultHostSections
	}
	return hs.Unwrap()
}
