package config

import "sync"

// CachePolicy is the file cache policy of a run. One value is shared by all
// sources of the run; fetchers read it when they are configured, so changes
// made after a source was created still apply.
type CachePolicy struct {
	mu sync.RWMutex

	// disabled prevents using cached data at all.
	disabled      bool
	snmpDisabled  bool
	agentDisabled bool
	// maybe recommends, but does not enforce, using the cache. It is a hint
	// for callers and never reaches fetchers.
	maybe bool
	// useOutdated accepts cache files older than the max age of the source.
	useOutdated bool
}

// CacheSnapshot is a consistent copy of a CachePolicy.
type CacheSnapshot struct {
	Disabled      bool
	SNMPDisabled  bool
	AgentDisabled bool
	Maybe         bool
	UseOutdated   bool
}

func (p *CachePolicy) Snapshot() CacheSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return CacheSnapshot{
		Disabled:      p.disabled,
		SNMPDisabled:  p.snmpDisabled,
		AgentDisabled: p.agentDisabled,
		Maybe:         p.maybe,
		UseOutdated:   p.useOutdated,
	}
}

// SetCacheOpts enables cache usage, including outdated cache files.
func (p *CachePolicy) SetCacheOpts(useCaches bool) {
	if !useCaches {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybe = true
	p.useOutdated = true
}

// ResetMaybe recommends the cache unless it is disabled.
func (p *CachePolicy) ResetMaybe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybe = !p.disabled
}

func (p *CachePolicy) SetDisabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = v
}

func (p *CachePolicy) SetSNMPDisabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snmpDisabled = v
}

func (p *CachePolicy) SetAgentDisabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentDisabled = v
}

func (p *CachePolicy) SetUseOutdated(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useOutdated = v
}

// Options are the settings of one run, built once and passed to every source.
type Options struct {
	// Debug lets failures inside the checker panic instead of being reported.
	Debug bool
	// Simulation makes fetchers read cache files only.
	Simulation bool

	mu                  sync.RWMutex
	useOutdatedSections bool

	Cache *CachePolicy
	Paths Paths
}

// NewOptions returns options with an empty cache policy and default paths.
func NewOptions() *Options {
	o := &Options{Cache: &CachePolicy{}}
	o.Paths.applyDefaults()
	return o
}

// UseOutdatedPersistedSections allows outdated persisted sections from now on.
func (o *Options) UseOutdatedPersistedSections() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.useOutdatedSections = true
}

// OutdatedPersistedSectionsAllowed reports whether outdated persisted
// sections may be used.
func (o *Options) OutdatedPersistedSectionsAllowed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.useOutdatedSections
}
