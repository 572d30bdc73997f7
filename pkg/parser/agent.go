package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// AgentParser parses the text output of a monitoring agent.
//
// Sections start with a header line `<<<name:option:option>>>`. Known
// options are sep(N) with N the decimal code of the field separator,
// cached(at,interval) and persist(until). A header of an already seen
// section appends to it. Lines between `<<<<host>>>>` and `<<<<>>>>` belong
// to another host and are kept verbatim as piggyback data.
type AgentParser struct {
	// AllowEmpty accepts output without any data. Piggyback sources set it,
	// a host agent that sends nothing is an error.
	AllowEmpty bool

	now func() time.Time
}

func (p *AgentParser) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

type sectionHeader struct {
	name      sections.SectionName
	separator string
	cached    *sections.CacheEntry
	persist   *int64
}

func (p *AgentParser) ParseRaw(raw []byte) (*sections.HostSections, error) {
	if !p.AllowEmpty && len(bytes.TrimSpace(raw)) == 0 {
		return nil, failure.ErrEmptyAgentData
	}

	hs := sections.New()
	var (
		current   sections.SectionName
		inSection bool
		separator string
		piggyHost string
	)

	for _, rawLine := range strings.Split(string(raw), "\n") {
		line := strings.TrimRight(rawLine, "\r")
		stripped := strings.TrimSpace(line)

		if host, ok := piggybackHeader(stripped); ok {
			piggyHost = host
			inSection = false
			continue
		}
		if piggyHost != "" {
			hs.PiggybackedRawData[piggyHost] = append(hs.PiggybackedRawData[piggyHost], line)
			continue
		}

		if strings.HasPrefix(stripped, "<<<") && strings.HasSuffix(stripped, ">>>") && len(stripped) >= 6 {
			header, err := parseSectionHeader(stripped[3 : len(stripped)-3])
			if err != nil {
				return nil, err
			}
			if header.name == "" {
				inSection = false
				continue
			}
			current, inSection, separator = header.name, true, header.separator
			if _, ok := hs.Sections[current]; !ok {
				hs.Sections[current] = sections.SectionContent{}
			}
			if header.persist != nil {
				cachedAt := p.clock().Unix()
				hs.CacheInfo[current] = sections.CacheEntry{CachedAt: cachedAt, Interval: *header.persist - cachedAt}
				hs.PersistedSections[current] = sections.PersistedSection{From: cachedAt, Until: *header.persist}
			}
			if header.cached != nil {
				hs.CacheInfo[current] = *header.cached
			}
			continue
		}

		if !inSection || stripped == "" {
			continue
		}
		var row sections.Row
		if separator != "" {
			row = strings.Split(line, separator)
		} else {
			row = strings.Fields(line)
		}
		hs.Sections[current] = append(hs.Sections[current], row)
	}

	// Persisted sections carry the rows collected in this run.
	for name, entry := range hs.PersistedSections {
		entry.Content = hs.Sections[name]
		hs.PersistedSections[name] = entry
	}

	if !p.AllowEmpty && len(hs.Sections) == 0 && len(hs.PiggybackedRawData) == 0 {
		return nil, failure.ErrEmptyAgentData
	}
	return hs, nil
}

// piggybackHeader recognizes `<<<<host>>>>`; an empty host ends the block.
func piggybackHeader(line string) (string, bool) {
	if len(line) < 8 || !strings.HasPrefix(line, "<<<<") || !strings.HasSuffix(line, ">>>>") {
		return "", false
	}
	return strings.TrimSpace(line[4 : len(line)-4]), true
}

func parseSectionHeader(header string) (sectionHeader, error) {
	parts := strings.Split(header, ":")
	h := sectionHeader{name: sections.SectionName(strings.TrimSpace(parts[0]))}

	for _, opt := range parts[1:] {
		name, args, _ := strings.Cut(opt, "(")
		args = strings.TrimSuffix(args, ")")
		switch name {
		case "sep":
			code, err := strconv.Atoi(args)
			if err != nil {
				// Unknown separators fall back to whitespace splitting.
				continue
			}
			h.separator = string(rune(code))
		case "cached":
			at, interval, ok := strings.Cut(args, ",")
			if !ok {
				return h, fmt.Errorf("section %s: invalid cached(%s)", h.name, args)
			}
			cachedAt, err := strconv.ParseInt(at, 10, 64)
			if err != nil {
				return h, fmt.Errorf("section %s: invalid cached time: %w", h.name, err)
			}
			iv, err := strconv.ParseInt(interval, 10, 64)
			if err != nil {
				return h, fmt.Errorf("section %s: invalid cache interval: %w", h.name, err)
			}
			h.cached = &sections.CacheEntry{CachedAt: cachedAt, Interval: iv}
		case "persist":
			until, err := strconv.ParseInt(args, 10, 64)
			if err != nil {
				return h, fmt.Errorf("section %s: invalid persist(%s): %w", h.name, args, err)
			}
			h.persist = &until
		}
	}
	return h, nil
}
