package parser

import (
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// SNMPRawData is what an SNMP fetcher returns: the walked tables, one per
// section, already split into rows.
type SNMPRawData map[sections.SectionName]sections.SectionContent

// SNMPParser maps SNMP tables onto sections. Sections listed in
// PersistIntervals (seconds) are also persisted for that long, so slow
// tables are only walked once per interval.
type SNMPParser struct {
	PersistIntervals map[sections.SectionName]int64

	now func() time.Time
}

func (p *SNMPParser) ParseRaw(raw SNMPRawData) (*sections.HostSections, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	hs := sections.New()
	for name, content := range raw {
		hs.Sections[name] = content
		interval, ok := p.PersistIntervals[name]
		if !ok || interval <= 0 {
			continue
		}
		at := now().Unix()
		hs.CacheInfo[name] = sections.CacheEntry{CachedAt: at, Interval: interval}
		hs.PersistedSections[name] = sections.PersistedSection{From: at, Until: at + interval, Content: content}
	}
	return hs, nil
}
