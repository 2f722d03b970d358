// Package manager implements the directory-rooted registry of named
// collections: one base directory, one subdirectory per collection,
// discovered and loaded by scanning the base directory at construction
// instead of an explicit catalog file.
package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/torinriley/vecstream/pkg/collection"
	"github.com/torinriley/vecstream/pkg/hnsw"
)

// Common errors returned by Manager operations.
var (
	ErrInvalidName      = errors.New("vecstream: invalid collection name")
	ErrCollectionExists = errors.New("vecstream: collection already exists")
	ErrNoSuchCollection = errors.New("vecstream: no such collection")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Manager owns every collection rooted under a single base directory.
type Manager struct {
	mu               sync.RWMutex
	baseDir          string
	cfg              hnsw.Config
	rebuildThreshold float64
	collections      map[string]*collection.Collection
}

// SetRebuildThreshold sets the deleted-fraction rebuild trigger applied to
// every collection this Manager creates from now on (see
// pkg/config's VECSTREAM_REBUILD_THRESHOLD). Collections discovered by New
// keep whatever threshold was persisted in their own config.json; this only
// governs collections created afterward via CreateCollection.
func (m *Manager) SetRebuildThreshold(threshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuildThreshold = threshold
}

// New creates a Manager rooted at baseDir, creating it if necessary, and
// eagerly loads every subdirectory that looks like a saved collection.
// A subdirectory that fails to load is skipped rather than failing the
// whole manager, since one corrupt collection should not make every other
// collection unreachable.
func New(baseDir string, cfg hnsw.Config) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("vecstream: create collections dir: %w", err)
	}

	m := &Manager{
		baseDir:     baseDir,
		cfg:         cfg,
		collections: make(map[string]*collection.Collection),
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("vecstream: scan collections dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !nameRe.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(baseDir, e.Name())
		if _, err := os.Stat(filepath.Join(path, "config.json")); err != nil {
			continue
		}
		c, err := collection.Load(e.Name(), path)
		if err != nil {
			continue
		}
		m.collections[e.Name()] = c
	}

	return m, nil
}

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// CreateCollection creates and registers a new, empty collection named
// name. Fails with ErrInvalidName if name does not match [A-Za-z0-9_-]{1,64}
// and ErrCollectionExists if a collection with that name is already
// registered.
func (m *Manager) CreateCollection(name string) (*collection.Collection, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.collections[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}

	c, err := collection.New(name, filepath.Join(m.baseDir, name), m.cfg)
	if err != nil {
		return nil, err
	}
	c.SetRebuildThreshold(m.rebuildThreshold)
	m.collections[name] = c
	return c, nil
}

// GetCollection returns the named collection, or ErrNoSuchCollection.
func (m *Manager) GetCollection(name string) (*collection.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchCollection, name)
	}
	return c, nil
}

// ListCollections returns every registered collection name, alphabetically.
func (m *Manager) ListCollections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteCollection unregisters name and removes its backing directory, if
// any. Fails with ErrNoSuchCollection if name is not registered.
func (m *Manager) DeleteCollection(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchCollection, name)
	}
	delete(m.collections, name)

	path := filepath.Join(m.baseDir, name)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("vecstream: remove collection dir %s: %w", path, err)
	}
	return nil
}

// CollectionStats returns the named collection's Stats, or
// ErrNoSuchCollection.
func (m *Manager) CollectionStats(name string) (collection.Stats, error) {
	c, err := m.GetCollection(name)
	if err != nil {
		return collection.Stats{}, err
	}
	return c.Stats(), nil
}

// SaveAll persists every registered collection, stopping at the first
// error.
func (m *Manager) SaveAll() error {
	m.mu.RLock()
	names := make([]string, 0, len(m.collections))
	cols := make([]*collection.Collection, 0, len(m.collections))
	for name, c := range m.collections {
		names = append(names, name)
		cols = append(cols, c)
	}
	m.mu.RUnlock()

	for i, c := range cols {
		if err := c.Save(); err != nil {
			return fmt.Errorf("vecstream: save collection %q: %w", names[i], err)
		}
	}
	return nil
}
