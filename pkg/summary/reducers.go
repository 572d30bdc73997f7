package summary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// AgentReducer reports the agent version and OS found in the check_mk
// section and warns when the version is not the expected one.
type AgentReducer struct {
	ExpectedVersion string
}

func (r *AgentReducer) Reduce(hs *sections.HostSections) models.ServiceCheckResult {
	info := agentInfo(hs.Sections["check_mk"])

	var (
		parts  []string
		status = StateOK
	)
	if version, ok := info["version"]; ok {
		text := "Version: " + version
		if r.ExpectedVersion != "" && version != r.ExpectedVersion {
			status = StateWarn
			text = fmt.Sprintf("unexpected agent version %s (should be %s)%s", version, r.ExpectedVersion, StateMarker(StateWarn))
		}
		parts = append(parts, text)
	}
	if os, ok := info["agentos"]; ok {
		parts = append(parts, "OS: "+os)
	}
	if len(parts) == 0 {
		parts = append(parts, "Success")
	}
	return models.ServiceCheckResult{Status: status, Output: strings.Join(parts, ", "), Metrics: []models.Metric{}}
}

func agentInfo(content sections.SectionContent) map[string]string {
	info := make(map[string]string)
	for _, row := range content {
		if len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(row[0], ":"))
		info[key] = strings.Join(row[1:], " ")
	}
	return info
}

// SNMPReducer reports success; SNMP failures arrive as errors.
type SNMPReducer struct{}

func (SNMPReducer) Reduce(*sections.HostSections) models.ServiceCheckResult {
	return models.ServiceCheckResult{Status: StateOK, Output: "Success", Metrics: []models.Metric{}}
}

// PiggybackReducer lists the hosts that delivered piggyback data. Sources
// returns the names of those hosts.
type PiggybackReducer struct {
	Sources func() []string
}

func (r *PiggybackReducer) Reduce(*sections.HostSections) models.ServiceCheckResult {
	var sources []string
	if r.Sources != nil {
		sources = r.Sources()
	}
	if len(sources) == 0 {
		return models.ServiceCheckResult{Status: StateOK, Output: "No piggyback data", Metrics: []models.Metric{}}
	}
	sort.Strings(sources)
	quoted := make([]string, len(sources))
	for i, s := range sources {
		quoted[i] = "'" + s + "'"
	}
	return models.ServiceCheckResult{
		Status:  StateOK,
		Output:  "Successfully processed from source " + strings.Join(quoted, ", "),
		Metrics: []models.Metric{{Name: "piggyback_sources", Value: float64(len(sources))}},
	}
}
