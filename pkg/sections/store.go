package sections

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// PersistedSection is a section kept on disk together with its validity
// window. Entries written by old versions only carry a valid-until stamp;
// they are read but never used.
type PersistedSection struct {
	From    int64
	Until   int64
	Content SectionContent
	legacy  bool
}

// LegacySection builds an entry in the old two-field shape.
func LegacySection(until int64, content SectionContent) PersistedSection {
	return PersistedSection{Until: until, Content: content, legacy: true}
}

// Legacy reports whether the entry uses the old two-field shape.
func (p PersistedSection) Legacy() bool { return p.legacy }

// MarshalJSON writes [from, until, rows], or [until, rows] for legacy entries.
func (p PersistedSection) MarshalJSON() ([]byte, error) {
	content := p.Content
	if content == nil {
		content = SectionContent{}
	}
	if p.legacy {
		return json.Marshal([]any{p.Until, content})
	}
	return json.Marshal([]any{p.From, p.Until, content})
}

func (p *PersistedSection) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var entry PersistedSection
	switch len(fields) {
	case 2:
		entry.legacy = true
		if err := json.Unmarshal(fields[0], &entry.Until); err != nil {
			return fmt.Errorf("invalid valid-until: %w", err)
		}
		if err := json.Unmarshal(fields[1], &entry.Content); err != nil {
			return fmt.Errorf("invalid section content: %w", err)
		}
	case 3:
		if err := json.Unmarshal(fields[0], &entry.From); err != nil {
			return fmt.Errorf("invalid valid-from: %w", err)
		}
		if err := json.Unmarshal(fields[1], &entry.Until); err != nil {
			return fmt.Errorf("invalid valid-until: %w", err)
		}
		if err := json.Unmarshal(fields[2], &entry.Content); err != nil {
			return fmt.Errorf("invalid section content: %w", err)
		}
	default:
		return fmt.Errorf("persisted section has %d fields, want 2 or 3", len(fields))
	}
	*p = entry
	return nil
}

// PersistedSections maps a section name to its persisted entry.
type PersistedSections map[SectionName]PersistedSection

// Equal reports whether both maps hold the same entries. Nil and empty are equal.
func (p PersistedSections) Equal(other PersistedSections) bool {
	if len(p) != len(other) {
		return false
	}
	for name, entry := range p {
		o, ok := other[name]
		if !ok || entry.legacy != o.legacy || entry.From != o.From || entry.Until != o.Until {
			return false
		}
		if !entry.Content.Equal(o.Content) {
			return false
		}
	}
	return true
}

// Equal compares two contents row by row. Nil and empty are equal.
func (c SectionContent) Equal(other SectionContent) bool {
	return slices.EqualFunc(c, other, func(a, b Row) bool { return slices.Equal(a, b) })
}

// Store reads and writes the persisted sections of one host and source.
// Callers serialize access to a path; the store does not lock.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a store for the file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger, now: time.Now}
}

// Path returns the file the store works on.
func (s *Store) Path() string { return s.path }

// Load returns the persisted sections. It never fails: a missing or corrupt
// file yields an empty map and a corrupt entry is dropped. Unless
// acceptOutdated is set, entries past their valid-until are dropped too.
// The file is removed when nothing is left.
func (s *Store) Load(acceptOutdated bool) PersistedSections {
	sections := s.read()
	if !acceptOutdated {
		now := s.now().Unix()
		for name, entry := range sections {
			if now > entry.Until {
				s.logger.Debug("Persisted section is outdated, skipping it",
					"section", string(name), "outdated_by_seconds", now-entry.Until)
				delete(sections, name)
			}
		}
	}
	if len(sections) == 0 {
		s.logger.Debug("No persisted sections loaded", "path", s.path)
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Failed to remove persisted sections file", "path", s.path, "error", err)
		}
	}
	return sections
}

func (s *Store) read() PersistedSections {
	sections := make(PersistedSections)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Failed to read persisted sections", "path", s.path, "error", err)
		}
		return sections
	}
	if len(data) == 0 {
		return sections
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Debug("Persisted sections file is corrupt", "path", s.path, "error", err)
		return sections
	}
	for name, msg := range raw {
		var entry PersistedSection
		if err := json.Unmarshal(msg, &entry); err != nil {
			s.logger.Debug("Skipping corrupt persisted section", "section", name, "error", err)
			continue
		}
		sections[SectionName(name)] = entry
	}
	return sections
}

// Store replaces the file content with sections. The new content is written
// to a temporary file first and renamed into place.
func (s *Store) Store(sections PersistedSections) error {
	if sections == nil {
		sections = make(PersistedSections)
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("failed to marshal persisted sections: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".new*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write persisted sections: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync persisted sections: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close persisted sections: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	s.logger.Debug("Stored persisted sections", "path", s.path, "count", len(sections))
	return nil
}
