// Package filestore manages the location, materialization, and file-handle
// lifecycle of named file resources grouped by owning plugin.
//
// Every resource is registered under a (group, id) key with a storage kind
// that determines its directory root, and an option that describes how the
// bytes on disk are encoded (plain, gzip, gzip pending decompression, or a
// tar archive). Paths are computed once at registration; handles are opened
// lazily and closed at store teardown.
package filestore

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

// Kind selects the directory root for a resource.
type Kind int

const (
	// KindTemp places the file in the per-run temporary directory.
	KindTemp Kind = iota
	// KindCache places the file in the persistent cache directory.
	KindCache
	// KindOutput places the file in the output directory.
	KindOutput
	// KindUser uses the registered filename verbatim.
	KindUser
)

// Option describes the on-disk encoding of a resource.
type Option int

const (
	// OptNone is a plain file.
	OptNone Option = iota
	// OptGzip is a gzip file read/written through transparent (de)coding.
	OptGzip
	// OptGzipDecompress is a gzip file decompressed in place by Materialize;
	// the entry's logical path switches to the decompressed name.
	OptGzipDecompress
	// OptTar is a tar archive extracted in place by Materialize.
	OptTar
)

// Config holds the directory roots and fetch policy for a Store.
type Config struct {
	TempPrefix   string
	CacheDir     string
	OutputDir    string
	ExpiryDays   int
	FetchRetries uint64
	KeepTemp     bool
}

// Entry is one managed file resource.
type Entry struct {
	Group  string
	ID     string
	URL    string
	Kind   Kind
	Option Option

	path   string
	handle *Handle
}

// Store holds every registered resource entry, grouped by owning plugin.
type Store struct {
	entries map[string]map[string]*Entry

	tempDir    string
	cacheDir   string
	outputDir  string
	expiryDays int
	retries    uint64
	keepTemp   bool

	client *http.Client
}

// New establishes the directory roots: a freshly created unique temporary
// directory owned by this process, plus the persistent cache and output
// directories (created if absent).
func New(cfg Config) (*Store, error) {
	tempDir := filepath.Join(os.TempDir(), cfg.TempPrefix+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	log.Debug(log.CatStore, "Resource store initialized",
		"temp", tempDir, "cache", cfg.CacheDir, "output", cfg.OutputDir)

	return &Store{
		entries:    make(map[string]map[string]*Entry),
		tempDir:    tempDir,
		cacheDir:   cfg.CacheDir,
		outputDir:  cfg.OutputDir,
		expiryDays: cfg.ExpiryDays,
		retries:    cfg.FetchRetries,
		keepTemp:   cfg.KeepTemp,
		client:     &http.Client{},
	}, nil
}

// TempDir returns the per-run temporary directory root.
func (s *Store) TempDir() string { return s.tempDir }

// CacheDir returns the persistent cache directory root.
func (s *Store) CacheDir() string { return s.cacheDir }

// ExpiryDays returns the default age threshold for cached data.
func (s *Store) ExpiryDays() int { return s.expiryDays }

// Register records a resource under (group, id) and computes its path from
// the kind's directory root. Registration touches neither the filesystem nor
// the network.
func (s *Store) Register(group, id, filename, url string, kind Kind, option Option) (*Entry, error) {
	e := &Entry{
		Group:  group,
		ID:     id,
		URL:    url,
		Kind:   kind,
		Option: option,
	}

	switch kind {
	case KindTemp:
		e.path = filepath.Join(s.tempDir, filename)
	case KindCache:
		e.path = filepath.Join(s.cacheDir, filename)
	case KindOutput:
		e.path = filepath.Join(s.outputDir, filename)
	case KindUser:
		e.path = filename
	default:
		return nil, fmt.Errorf("unknown resource kind %d", kind)
	}

	if s.entries[group] == nil {
		s.entries[group] = make(map[string]*Entry)
	}
	s.entries[group][id] = e

	log.Debug(log.CatStore, "Registered resource", "group", group, "id", id, "path", e.path)
	return e, nil
}

// Entry looks up a resource by id. An empty group looks in the group named
// after the id itself. Unregistered keys are a hard error: they indicate a
// plugin defect, not a user input problem.
func (s *Store) Entry(id, group string) (*Entry, error) {
	if group == "" {
		group = id
	}
	e, ok := s.entries[group][id]
	if !ok {
		return nil, fmt.Errorf("unregistered resource %q in group %q", id, group)
	}
	return e, nil
}

// Group returns every entry registered under a group.
func (s *Store) Group(group string) ([]*Entry, error) {
	m, ok := s.entries[group]
	if !ok {
		return nil, fmt.Errorf("unregistered resource group %q", group)
	}
	out := make([]*Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out, nil
}

// Expired reports whether the file backing e is older than the store's
// expiry threshold.
func (s *Store) Expired(e *Entry) (bool, error) {
	info, err := os.Stat(e.Path())
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", e.Path(), err)
	}
	age := time.Since(info.ModTime())
	return age.Hours()/24 > float64(s.expiryDays), nil
}

// Close closes every open handle across every group, then removes the
// temporary directory root (unless keep-temp is set).
func (s *Store) Close() error {
	var firstErr error
	for _, group := range s.entries {
		for _, e := range group {
			if e.handle != nil {
				if err := e.handle.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
				e.handle = nil
			}
		}
	}

	if !s.keepTemp {
		if err := os.RemoveAll(s.tempDir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Path returns the entry's current logical path. For OptGzipDecompress the
// path transparently switches to the decompressed name once that file exists,
// so an interrupted run resumes without re-decompressing.
func (e *Entry) Path() string {
	if e.Option != OptGzipDecompress {
		return e.path
	}
	decompressed := stripGzSuffix(e.path)
	if decompressed != e.path {
		if _, err := os.Stat(decompressed); err == nil {
			return decompressed
		}
	}
	return e.path
}

// Exists reports whether the file at the entry's logical path exists.
func (e *Entry) Exists() bool {
	_, err := os.Stat(e.Path())
	return err == nil
}
