// Package config loads the host configuration and holds the options of one
// collection run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// DefaultVarDir is used when the configuration names no var directory.
const DefaultVarDir = "/var/lib/hostmon"

// Paths are the directories the pipeline works in.
type Paths struct {
	VarDir       string `yaml:"var_dir"`
	CacheDir     string `yaml:"cache_dir"`
	PiggybackDir string `yaml:"piggyback_dir"`
}

// PersistedSectionsDir is where section stores live, one directory per source id.
func (p Paths) PersistedSectionsDir() string {
	return filepath.Join(p.VarDir, "persisted_sections")
}

func (p *Paths) applyDefaults() {
	if p.VarDir == "" {
		p.VarDir = DefaultVarDir
	}
	if p.CacheDir == "" {
		p.CacheDir = filepath.Join(p.VarDir, "cache", "data_sources")
	}
	if p.PiggybackDir == "" {
		p.PiggybackDir = filepath.Join(p.VarDir, "piggyback")
	}
}

// ExitSpecRules configure failure states for all sources (Overall) and for
// single source ids (Individual).
type ExitSpecRules struct {
	Overall    models.ExitSpec            `yaml:"overall"`
	Individual map[string]models.ExitSpec `yaml:"individual"`
}

func (r ExitSpecRules) validate() error {
	check := func(scope string, spec models.ExitSpec) error {
		for category, state := range spec {
			if state < 0 || state > 3 {
				return fmt.Errorf("exit spec %s: state %d for %q is not in 0..3", scope, state, category)
			}
		}
		return nil
	}
	if err := check("overall", r.Overall); err != nil {
		return err
	}
	for id, spec := range r.Individual {
		if err := check(id, spec); err != nil {
			return err
		}
	}
	return nil
}

// Host is the configuration of one monitored host.
type Host struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`

	SSH *models.SSHConfig `yaml:"ssh"`

	// AgentVersion is the agent version the host is expected to run.
	AgentVersion string `yaml:"agent_version"`

	// MaxCacheAge in seconds per source id.
	MaxCacheAge map[string]int `yaml:"max_cache_age"`

	// SNMPPersist in seconds per SNMP section.
	SNMPPersist map[string]int64 `yaml:"snmp_persist"`

	ExitSpec ExitSpecRules `yaml:"exit_spec"`
}

// File is the content of the host configuration file.
type File struct {
	Paths      Paths         `yaml:"paths"`
	Simulation bool          `yaml:"simulation"`
	ExitSpec   ExitSpecRules `yaml:"exit_spec"`
	// PiggybackMaxAge in seconds; older piggyback files are ignored.
	PiggybackMaxAge int    `yaml:"piggyback_max_age"`
	Hosts           []Host `yaml:"hosts"`
}

// Load reads the host configuration from a YAML file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a host configuration.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	f.Paths.applyDefaults()
	if f.PiggybackMaxAge == 0 {
		f.PiggybackMaxAge = 3600
	}

	if err := f.ExitSpec.validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(f.Hosts))
	for i := range f.Hosts {
		h := &f.Hosts[i]
		if h.Name == "" {
			return nil, fmt.Errorf("host #%d has no name", i+1)
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("host %q configured twice", h.Name)
		}
		seen[h.Name] = true
		if err := h.ExitSpec.validate(); err != nil {
			return nil, fmt.Errorf("host %q: %w", h.Name, err)
		}
		if h.SSH != nil {
			if h.SSH.Host == "" {
				h.SSH.Host = h.Address
			}
			if h.SSH.Host == "" {
				h.SSH.Host = h.Name
			}
			h.SSH.ApplyDefaults()
		}
	}
	return &f, nil
}

// HostConfig is the effective configuration of one host.
type HostConfig struct {
	Host
	global *File
}

// MakeHostConfig returns the configuration of hostname. Unknown hosts get an
// empty host entry, so global settings still apply.
func (f *File) MakeHostConfig(hostname string) *HostConfig {
	for _, h := range f.Hosts {
		if h.Name == hostname {
			return &HostConfig{Host: h, global: f}
		}
	}
	return &HostConfig{Host: Host{Name: hostname}, global: f}
}

// ExitCodeSpec returns the failure states for source id. Host settings
// override global ones, and individual settings override overall ones.
func (h *HostConfig) ExitCodeSpec(id string) models.ExitSpec {
	spec := make(models.ExitSpec)
	var layers []models.ExitSpec
	if h.global != nil {
		layers = append(layers, h.global.ExitSpec.Overall)
	}
	layers = append(layers, h.ExitSpec.Overall)
	if h.global != nil {
		layers = append(layers, h.global.ExitSpec.Individual[id])
	}
	layers = append(layers, h.ExitSpec.Individual[id])

	for _, layer := range layers {
		for k, v := range layer {
			spec[k] = v
		}
	}
	return spec
}

// MaxCacheAgeOf returns the configured cache age for source id, or nil.
func (h *HostConfig) MaxCacheAgeOf(id string) *int {
	age, ok := h.MaxCacheAge[id]
	if !ok {
		return nil
	}
	return &age
}

// SNMPPersistIntervals converts SNMPPersist to section names.
func (h *HostConfig) SNMPPersistIntervals() map[sections.SectionName]int64 {
	if len(h.SNMPPersist) == 0 {
		return nil
	}
	out := make(map[sections.SectionName]int64, len(h.SNMPPersist))
	for name, seconds := range h.SNMPPersist {
		out[sections.SectionName(name)] = seconds
	}
	return out
}
