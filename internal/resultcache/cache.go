// Package resultcache persists per-product sentiment results keyed by the
// identity of the source file, so re-analyzing an unchanged file can be
// short-circuited entirely.
package resultcache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"revsense/pkg/contracts/domain"
)

// Key identifies a cache entry by source basename and modification time.
// The same file rewritten later produces a different key, superseding the
// old entry.
type Key struct {
	Base  string
	MTime int64
}

// Filename returns the deterministic on-disk name for the key: the source
// basename with dots replaced by underscores, the unix mtime, and a .json
// extension.
func (k Key) Filename() string {
	return fmt.Sprintf("%s_%d.json", strings.ReplaceAll(k.Base, ".", "_"), k.MTime)
}

// ReadError reports a cache entry that exists but could not be loaded. It
// is recoverable: callers may re-run the analysis instead of using the
// cache.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read cache entry %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Store is a directory of JSON result files. Entries never expire except
// by being superseded or by an explicit Clear.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a Store rooted at dir, creating the directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With(slog.String("component", "resultcache")),
	}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// KeyFor derives the cache key for a source file from its basename and
// modification time, floored to whole seconds.
func (s *Store) KeyFor(sourcePath string) (Key, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return Key{}, fmt.Errorf("failed to stat source file: %w", err)
	}
	return Key{
		Base:  filepath.Base(sourcePath),
		MTime: info.ModTime().Unix(),
	}, nil
}

// Save writes the result set for the key, replacing any previous entry
// wholesale. Callers treat failures as log-and-continue: a missing cache
// entry only costs a re-analysis.
func (s *Store) Save(key Key, results domain.ResultSet) error {
	path := filepath.Join(s.dir, key.Filename())

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	s.logger.Info("cached results",
		slog.String("entry", key.Filename()),
		slog.Int("products", len(results)))
	return nil
}

// Has reports whether an entry exists for the key.
func (s *Store) Has(key Key) bool {
	_, err := os.Stat(filepath.Join(s.dir, key.Filename()))
	return err == nil
}

// Load returns the cached result set for the key. A missing or unreadable
// entry returns a *ReadError.
func (s *Store) Load(key Key) (domain.ResultSet, error) {
	path := filepath.Join(s.dir, key.Filename())

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	var results domain.ResultSet
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return results, nil
}

// Entry describes a stored cache file.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Entries lists the stored cache files, newest first.
func (s *Store) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:     d.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

// Clear deletes all cache entries and returns how many were removed.
// Individual deletion failures are logged and skipped.
func (s *Store) Clear() (int, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	deleted := 0
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, d.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete cache entry",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	s.logger.Info("cache cleared", slog.Int("deleted", deleted))
	return deleted, nil
}

// DefaultDir resolves the per-user cache directory, falling back to a
// directory next to the executable when the home directory is unavailable
// or unwritable.
func DefaultDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".revsense", "cache")
		if writable(dir) {
			return dir
		}
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), "cache")
	}
	return "cache"
}

// writable reports whether dir exists (or can be created) and accepts
// writes.
func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
