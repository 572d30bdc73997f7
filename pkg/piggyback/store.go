// Package piggyback keeps raw data that one host delivered for another.
//
// Files live at <dir>/<target host>/<source host>; each holds the raw agent
// lines of the latest run of the source host.
package piggyback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// SourceFile describes the data one source host stored for a target.
type SourceFile struct {
	Source  string
	Path    string
	ModTime time.Time
}

// Store reads and writes piggyback files below a directory.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger, now: time.Now}
}

func (s *Store) Dir() string { return s.dir }

func safeName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid host name %q", name)
	}
	return nil
}

// Write replaces the data source stored for target.
func (s *Store) Write(target, source string, lines []string) error {
	if err := safeName(target); err != nil {
		return err
	}
	if err := safeName(source); err != nil {
		return err
	}

	dir := filepath.Join(s.dir, target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	data := strings.Join(lines, "\n")
	if len(lines) > 0 {
		data += "\n"
	}

	tmp := filepath.Join(dir, "."+source+".new")
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write piggyback data: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, source)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store piggyback data: %w", err)
	}
	return nil
}

// Sources lists the files stored for target, ordered by source name.
func (s *Store) Sources(target string) ([]SourceFile, error) {
	if err := safeName(target); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list piggyback data of %s: %w", target, err)
	}

	var files []SourceFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, SourceFile{
			Source:  e.Name(),
			Path:    filepath.Join(s.dir, target, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Source < files[j].Source })
	return files, nil
}

// Read concatenates the data stored for target. Files older than maxAge are
// left out; a zero maxAge accepts any age.
func (s *Store) Read(target string, maxAge time.Duration) ([]byte, []SourceFile, error) {
	files, err := s.Sources(target)
	if err != nil {
		return nil, nil, err
	}

	var (
		data []byte
		used []SourceFile
	)
	for _, f := range files {
		if maxAge > 0 && s.now().Sub(f.ModTime) > maxAge {
			s.logger.Debug("Piggyback file is outdated", "target", target, "source", f.Source)
			continue
		}
		content, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read piggyback data from %s: %w", f.Source, err)
		}
		data = append(data, content...)
		used = append(used, f)
	}
	return data, used, nil
}

// Distribute stores the piggyback data source delivered in this run and
// removes what source stored earlier for hosts it no longer reports.
func (s *Store) Distribute(ctx context.Context, source string, data sections.PiggybackRawData) error {
	for target, lines := range data {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Write(target, source, lines); err != nil {
			return err
		}
	}

	targets, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list piggyback directory: %w", err)
	}
	for _, t := range targets {
		if !t.IsDir() {
			continue
		}
		if _, ok := data[t.Name()]; ok {
			continue
		}
		path := filepath.Join(s.dir, t.Name(), source)
		if err := os.Remove(path); err == nil {
			s.logger.Debug("Removed obsolete piggyback data", "target", t.Name(), "source", source)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// Cleanup removes files older than maxAge and returns how many were removed.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	targets, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list piggyback directory: %w", err)
	}

	removed := 0
	for _, t := range targets {
		if !t.IsDir() {
			continue
		}
		files, err := s.Sources(t.Name())
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if s.now().Sub(f.ModTime) <= maxAge {
				continue
			}
			if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("failed to remove %s: %w", f.Path, err)
			}
			removed++
		}
	}
	return removed, nil
}
