package source

import (
	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/models"
)

// FileCacheConfigurer builds the file cache configuration of a source.
// Policy flags are read in Configure, not when the configurer is created.
type FileCacheConfigurer struct {
	path        string
	fetcherType models.FetcherType
	maxAge      *int
	simulation  bool
	policy      *config.CachePolicy
}

// NewFileCacheConfigurer binds a cache path to the shared policy. A nil
// policy behaves like an empty one.
func NewFileCacheConfigurer(path string, fetcherType models.FetcherType, maxAge *int, simulation bool, policy *config.CachePolicy) *FileCacheConfigurer {
	if policy == nil {
		policy = &config.CachePolicy{}
	}
	return &FileCacheConfigurer{
		path:        path,
		fetcherType: fetcherType,
		maxAge:      maxAge,
		simulation:  simulation,
		policy:      policy,
	}
}

func (c *FileCacheConfigurer) Path() string { return c.path }

// Configure returns the cache settings as of now.
func (c *FileCacheConfigurer) Configure() models.FileCacheConfig {
	p := c.policy.Snapshot()

	disabled := p.Disabled
	if c.fetcherType == models.FetcherSNMP {
		disabled = disabled || p.SNMPDisabled
	} else {
		disabled = disabled || p.AgentDisabled
	}

	var maxAge *int
	if c.maxAge != nil {
		age := *c.maxAge
		maxAge = &age
	}
	return models.FileCacheConfig{
		Path:        c.path,
		MaxAge:      maxAge,
		Disabled:    disabled,
		UseOutdated: p.UseOutdated,
		Simulation:  c.simulation,
	}
}
