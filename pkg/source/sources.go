package source

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/cputrack"
	"github.com/pershinghar/go-host-datasource/pkg/fetcher"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/parser"
	"github.com/pershinghar/go-host-datasource/pkg/piggyback"
	"github.com/pershinghar/go-host-datasource/pkg/summary"
)

// Source ids; they name cache and persisted sections directories.
const (
	AgentID     = "agent"
	SNMPID      = "snmp"
	PiggybackID = "piggyback"
)

// NewAgentSource returns the source querying the agent of host over SSH.
func NewAgentSource(host *config.HostConfig, options *config.Options, tracker *cputrack.Tracker, logger *slog.Logger) (*Source[[]byte], error) {
	if host.SSH == nil {
		return nil, errors.New("host " + host.Name + " has no ssh configuration")
	}
	ssh := *host.SSH
	return New(Params[[]byte]{
		Hostname:    host.Name,
		Address:     host.Address,
		Mode:        models.ModeChecking,
		SourceType:  models.SourceHost,
		FetcherType: models.FetcherAgent,
		Description: "SSH agent " + ssh.Host,
		ID:          AgentID,
		Factory: func(cache models.FileCacheConfig) (fetcher.Fetcher[[]byte], error) {
			return fetcher.NewCachedFetcher[[]byte](cache, fetcher.NewAgentFetcher(&ssh), fetcher.BytesCodec{}, logger), nil
		},
		Parser:  &parser.AgentParser{},
		Reducer: &summary.AgentReducer{ExpectedVersion: host.AgentVersion},
	}, host, options, tracker, logger)
}

// NewSNMPSource returns the SNMP source of host. The SNMP transport itself
// is provided by dial, which is called once per fetch.
func NewSNMPSource(host *config.HostConfig, options *config.Options, dial func() (fetcher.Fetcher[parser.SNMPRawData], error), tracker *cputrack.Tracker, logger *slog.Logger) (*Source[parser.SNMPRawData], error) {
	if dial == nil {
		return nil, errors.New("snmp source needs a transport")
	}
	return New(Params[parser.SNMPRawData]{
		Hostname:       host.Name,
		Address:        host.Address,
		Mode:           models.ModeChecking,
		SourceType:     models.SourceHost,
		FetcherType:    models.FetcherSNMP,
		Description:    "SNMP " + host.Address,
		DefaultRawData: parser.SNMPRawData{},
		ID:             SNMPID,
		Factory: func(cache models.FileCacheConfig) (fetcher.Fetcher[parser.SNMPRawData], error) {
			next, err := dial()
			if err != nil {
				return nil, err
			}
			return fetcher.NewCachedFetcher[parser.SNMPRawData](cache, next, fetcher.JSONCodec[parser.SNMPRawData]{}, logger), nil
		},
		Parser:  &parser.SNMPParser{PersistIntervals: host.SNMPPersistIntervals()},
		Reducer: summary.SNMPReducer{},
	}, host, options, tracker, logger)
}

// NewPiggybackSource returns the source reading what other hosts delivered
// for host. Piggyback data is not file cached.
func NewPiggybackSource(host *config.HostConfig, options *config.Options, store *piggyback.Store, maxAge time.Duration, tracker *cputrack.Tracker, logger *slog.Logger) (*Source[[]byte], error) {
	if store == nil {
		return nil, errors.New("piggyback source needs a store")
	}
	sources := func() []string {
		files, err := store.Sources(host.Name)
		if err != nil {
			return nil
		}
		var names []string
		for _, f := range files {
			if maxAge <= 0 || time.Since(f.ModTime) <= maxAge {
				names = append(names, f.Source)
			}
		}
		return names
	}
	return New(Params[[]byte]{
		Hostname:    host.Name,
		Address:     host.Address,
		Mode:        models.ModeChecking,
		SourceType:  models.SourceHost,
		FetcherType: models.FetcherPiggyback,
		Description: "Process piggyback data from " + store.Dir(),
		ID:          PiggybackID,
		Factory: func(models.FileCacheConfig) (fetcher.Fetcher[[]byte], error) {
			return fetcher.NewPiggybackFetcher(store, host.Name, maxAge), nil
		},
		Parser:  &parser.AgentParser{AllowEmpty: true},
		Reducer: &summary.PiggybackReducer{Sources: sources},
	}, host, options, tracker, logger)
}
