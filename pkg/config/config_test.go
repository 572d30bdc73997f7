package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

const sampleConfig = `
paths:
  var_dir: /tmp/hostmon
simulation: true
exit_spec:
  overall:
    connection: 1
  individual:
    agent:
      timeout: 1
hosts:
  - name: web01
    address: 10.0.0.5
    agent_version: "2.0.0"
    ssh:
      username: monitor
      password: secret
    max_cache_age:
      agent: 90
    snmp_persist:
      if64: 300
    exit_spec:
      individual:
        agent:
          connection: 0
  - name: switch01
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.True(t, f.Simulation)
	assert.Equal(t, "/tmp/hostmon", f.Paths.VarDir)
	assert.Equal(t, filepath.Join("/tmp/hostmon", "cache", "data_sources"), f.Paths.CacheDir)
	assert.Equal(t, filepath.Join("/tmp/hostmon", "piggyback"), f.Paths.PiggybackDir)
	assert.Equal(t, filepath.Join("/tmp/hostmon", "persisted_sections"), f.Paths.PersistedSectionsDir())
	assert.Equal(t, 3600, f.PiggybackMaxAge)

	require.Len(t, f.Hosts, 2)
	ssh := f.Hosts[0].SSH
	require.NotNil(t, ssh)
	assert.Equal(t, "10.0.0.5", ssh.Host)
	assert.Equal(t, 22, ssh.Port)
	assert.Equal(t, models.DefaultAgentCommand, ssh.AgentCommand)
	assert.Nil(t, f.Hosts[1].SSH)
}

func TestParseRejectsInvalidHosts(t *testing.T) {
	_, err := Parse([]byte("hosts:\n  - address: 1.2.3.4\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("hosts:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("hosts: [\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("exit_spec:\n  overall:\n    timeout: 7\n"))
	assert.ErrorContains(t, err, "not in 0..3")

	_, err = Parse([]byte("hosts:\n  - name: a\n    exit_spec:\n      individual:\n        agent:\n          connection: -1\n"))
	assert.ErrorContains(t, err, `host "a"`)
}

func TestExitCodeSpec(t *testing.T) {
	f, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	web := f.MakeHostConfig("web01")
	assert.Equal(t, models.ExitSpec{"connection": 0, "timeout": 1}, web.ExitCodeSpec("agent"))
	assert.Equal(t, models.ExitSpec{"connection": 1}, web.ExitCodeSpec("snmp"))

	unknown := f.MakeHostConfig("nowhere")
	assert.Equal(t, "nowhere", unknown.Name)
	assert.Equal(t, models.ExitSpec{"connection": 1, "timeout": 1}, unknown.ExitCodeSpec("agent"))
}

func TestHostConfigHelpers(t *testing.T) {
	f, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	web := f.MakeHostConfig("web01")

	require.NotNil(t, web.MaxCacheAgeOf("agent"))
	assert.Equal(t, 90, *web.MaxCacheAgeOf("agent"))
	assert.Nil(t, web.MaxCacheAgeOf("snmp"))
	assert.Equal(t, map[sections.SectionName]int64{"if64": 300}, web.SNMPPersistIntervals())
	assert.Nil(t, f.MakeHostConfig("switch01").SNMPPersistIntervals())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Hosts, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCachePolicy(t *testing.T) {
	p := &CachePolicy{}
	p.SetCacheOpts(false)
	assert.Equal(t, CacheSnapshot{}, p.Snapshot())

	p.SetCacheOpts(true)
	assert.True(t, p.Snapshot().Maybe)
	assert.True(t, p.Snapshot().UseOutdated)

	p.SetDisabled(true)
	p.ResetMaybe()
	assert.False(t, p.Snapshot().Maybe)
}

func TestOptionsOutdatedPersistedSections(t *testing.T) {
	o := NewOptions()
	assert.False(t, o.OutdatedPersistedSectionsAllowed())
	o.UseOutdatedPersistedSections()
	assert.True(t, o.OutdatedPersistedSectionsAllowed())
	assert.Equal(t, DefaultVarDir, o.Paths.VarDir)
}
