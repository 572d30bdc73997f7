package models

import "fmt"

// Mode tells a fetcher what the data is collected for.
type Mode int

const (
	ModeChecking Mode = iota
	ModeDiscovery
	ModeInventory
	// ModeForceSections always talks to the host, ignoring the file cache.
	ModeForceSections
)

func (m Mode) String() string {
	switch m {
	case ModeChecking:
		return "checking"
	case ModeDiscovery:
		return "discovery"
	case ModeInventory:
		return "inventory"
	case ModeForceSections:
		return "force_sections"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// FetcherType is the transport a source uses.
type FetcherType string

const (
	FetcherAgent     FetcherType = "agent"
	FetcherSNMP      FetcherType = "snmp"
	FetcherPiggyback FetcherType = "piggyback"
)

// SourceType distinguishes sources that talk to the host itself from those
// that only handle data about it.
type SourceType string

const (
	SourceHost       SourceType = "host"
	SourceManagement SourceType = "management"
)

// ExitSpec maps a failure category name to the state reported for it.
type ExitSpec map[string]int

// Get returns the state configured for key, or def.
func (s ExitSpec) Get(key string, def int) int {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// Metric is one performance value of a check result.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ServiceCheckResult is the outcome of a data source: state 0-3, output, metrics.
type ServiceCheckResult struct {
	Status  int      `json:"status"`
	Output  string   `json:"output"`
	Metrics []Metric `json:"metrics"`
}

// FileCacheConfig is the effective cache policy handed to a fetcher.
type FileCacheConfig struct {
	Path string `json:"path"`
	// MaxAge in seconds, nil when the fetcher decides.
	MaxAge      *int `json:"max_age"`
	Disabled    bool `json:"disabled"`
	UseOutdated bool `json:"use_outdated"`
	Simulation  bool `json:"simulation"`
}
