// Package sections holds the parsed data of one host and one source run:
// live sections, their cache information, piggyback data for other hosts
// and sections persisted for later runs.
package sections

import (
	"fmt"
	"log/slog"
)

// SectionName identifies a group of monitoring rows.
type SectionName string

// Row is one line of a section, split into fields.
type Row []string

// SectionContent is the ordered list of rows of a section.
type SectionContent []Row

// CacheEntry records when a section was collected and how long it is valid.
type CacheEntry struct {
	CachedAt int64
	Interval int64
}

// CacheInfo maps a section to its cache entry.
type CacheInfo map[SectionName]CacheEntry

// PiggybackRawData maps a target host to the raw lines delivered for it.
type PiggybackRawData map[string][]string

// HostSections is the aggregate produced by parsing the raw data of a source.
type HostSections struct {
	Sections           map[SectionName]SectionContent
	CacheInfo          CacheInfo
	PiggybackedRawData PiggybackRawData
	PersistedSections  PersistedSections
}

// New returns empty host sections with all maps allocated.
func New() *HostSections {
	return &HostSections{
		Sections:           make(map[SectionName]SectionContent),
		CacheInfo:          make(CacheInfo),
		PiggybackedRawData: make(PiggybackRawData),
		PersistedSections:  make(PersistedSections),
	}
}

func (h *HostSections) String() string {
	return fmt.Sprintf("HostSections(sections=%v, cache_info=%v, piggybacked_raw_data=%v, persisted_sections=%v)",
		h.Sections, h.CacheInfo, h.PiggybackedRawData, h.PersistedSections)
}

func (h *HostSections) init() {
	if h.Sections == nil {
		h.Sections = make(map[SectionName]SectionContent)
	}
	if h.CacheInfo == nil {
		h.CacheInfo = make(CacheInfo)
	}
	if h.PiggybackedRawData == nil {
		h.PiggybackedRawData = make(PiggybackRawData)
	}
	if h.PersistedSections == nil {
		h.PersistedSections = make(PersistedSections)
	}
}

// Merge adds the contents of other to h. Rows of equally named sections
// are concatenated and piggyback lines appended. Cache info entries of other
// replace those of h; they are not reconciled. Persisted sections of other
// replace those of h key by key.
func (h *HostSections) Merge(other *HostSections) {
	if other == nil {
		return
	}
	h.init()

	for name, content := range other.Sections {
		h.Sections[name] = append(h.Sections[name], content...)
	}
	for host, lines := range other.PiggybackedRawData {
		h.PiggybackedRawData[host] = append(h.PiggybackedRawData[host], lines...)
	}
	for name, entry := range other.CacheInfo {
		h.CacheInfo[name] = entry
	}
	for name, entry := range other.PersistedSections {
		h.PersistedSections[name] = entry
	}
}

// AddPersistedSections loads the store at path, writes back the sections
// this run wants persisted and adds every stored section that has no live
// counterpart.
func (h *HostSections) AddPersistedSections(path string, acceptOutdated bool, logger *slog.Logger) error {
	persisted, err := h.LoadPersisted(path, acceptOutdated, logger)
	if err != nil {
		return err
	}
	h.ApplyPersisted(persisted, logger)
	return nil
}

// LoadPersisted reads the store at path. When its content differs from
// h.PersistedSections, both are merged with h winning and the result is
// stored, so the next run finds the sections collected now.
func (h *HostSections) LoadPersisted(path string, acceptOutdated bool, logger *slog.Logger) (PersistedSections, error) {
	store := NewStore(path, logger)
	persisted := store.Load(acceptOutdated)
	if persisted.Equal(h.PersistedSections) {
		return persisted, nil
	}
	for name, entry := range h.PersistedSections {
		persisted[name] = entry
	}
	if err := store.Store(persisted); err != nil {
		return nil, err
	}
	return persisted, nil
}

// ApplyPersisted promotes persisted sections into the live sections. Legacy
// entries are skipped, and a section already received live is never replaced.
func (h *HostSections) ApplyPersisted(persisted PersistedSections, logger *slog.Logger) {
	if len(persisted) == 0 {
		return
	}
	h.init()
	if logger == nil {
		logger = slog.Default()
	}

	for name, entry := range persisted {
		if entry.Legacy() {
			continue
		}
		if _, ok := h.Sections[name]; ok {
			logger.Debug("Skipping persisted section, live data available", "section", string(name))
			continue
		}
		logger.Debug("Using persisted section", "section", string(name))
		h.CacheInfo[name] = CacheEntry{CachedAt: entry.From, Interval: entry.Until - entry.From}
		h.Sections[name] = entry.Content
	}
}
