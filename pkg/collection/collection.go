// Package collection binds one VectorStore and one HNSW index into the
// single named unit a caller adds vectors to and searches. A Collection
// owns a single reader/writer lock: concurrent reads (Get, Search, Stats)
// run in parallel, but Add/Remove/Save each take the full lock. Load
// builds a new Collection that no other goroutine can see until it returns.
package collection

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/torinriley/vecstream/pkg/filter"
	"github.com/torinriley/vecstream/pkg/hnsw"
	"github.com/torinriley/vecstream/pkg/store"
)

// Common errors returned by Collection operations.
var (
	ErrEmptyQuery = errors.New("vecstream: empty query vector")
	ErrEmptyName  = errors.New("vecstream: collection name is empty")
)

// defaultRebuildThreshold is the deleted-fraction that triggers a rebuild
// when a Collection is never given an explicit one, either directly or via
// a CollectionManager (see pkg/config's VECSTREAM_REBUILD_THRESHOLD).
const defaultRebuildThreshold = 0.25

// Result is one ranked search hit: similarity in [-1, 1], descending, with
// metadata attached when the caller asked for it.
type Result struct {
	ID         string
	Similarity float64
	Metadata   store.Metadata
}

// Stats summarizes a Collection's current state, exposing enough of the
// HNSW graph's internals (entry point, parameters) for operational
// tooling alongside the bare count and dimension.
type Stats struct {
	Name             string
	Count            int
	Dimension        int
	Dirty            bool
	DeletedFraction  float64
	RebuildThreshold float64
	HNSW             hnsw.Config
	EntryPoint       string
}

// Collection is an in-memory vector store plus its HNSW index, identified
// by name and optionally backed by a directory on disk.
type Collection struct {
	mu   sync.RWMutex
	name string
	dir  string // empty for a purely in-memory collection
	cfg  hnsw.Config

	store *store.VectorStore
	index *hnsw.Index // nil until the first vector fixes the dimension

	dirty            bool
	totalRemoved     int
	totalEverAdd     int
	rebuildThreshold float64
}

// New creates an empty, unbound Collection. dir may be empty if the
// collection is never meant to be persisted.
func New(name, dir string, cfg hnsw.Config) (*Collection, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return &Collection{
		name:             name,
		dir:              dir,
		cfg:              cfg,
		store:            store.New(),
		rebuildThreshold: defaultRebuildThreshold,
	}, nil
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// SetRebuildThreshold overrides the deleted-fraction that triggers an
// automatic index rebuild on remove. Values <= 0 are ignored, leaving the
// current threshold (defaultRebuildThreshold unless already overridden)
// in place.
func (c *Collection) SetRebuildThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildThreshold = threshold
}

// AddVector inserts id with vec and optional metadata. The first successful
// call fixes the collection's dimension for every later call. Insertion is
// atomic across the store and the index: if the index insert fails after
// the store accepted the record, the store entry is rolled back.
func (c *Collection) AddVector(id string, vec []float32, meta store.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Add(id, vec, meta); err != nil {
		return err
	}

	if c.index == nil {
		c.index = hnsw.New(len(vec), c.cfg)
	}

	if err := c.index.Insert(id, vec); err != nil {
		_ = c.store.Remove(id)
		return err
	}

	c.dirty = true
	c.totalEverAdd++
	return nil
}

// GetVector returns a copy of the stored vector for id.
func (c *Collection) GetVector(id string) ([]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vec, _, err := c.store.Get(id)
	return vec, err
}

// GetVectorWithMetadata returns a copy of the stored vector and its
// metadata document for id.
func (c *Collection) GetVectorWithMetadata(id string) ([]float32, store.Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.store.Get(id)
}

// RemoveVector deletes id from both the store and the index. Fails with
// store.ErrNotFound if id is not present; the index is only touched once
// the store delete has succeeded, so a failed remove never leaves the
// index and store out of sync.
func (c *Collection) RemoveVector(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Remove(id); err != nil {
		return err
	}

	if c.index != nil {
		c.index.Remove(id)
	}

	c.totalRemoved++
	c.dirty = true

	if c.shouldRebuildLocked() {
		c.rebuildIndexLocked()
	}
	return nil
}

func (c *Collection) shouldRebuildLocked() bool {
	if c.index == nil || c.index.Size() == 0 {
		return false
	}
	total := c.index.Size() + c.totalRemoved
	if total == 0 {
		return false
	}
	return float64(c.totalRemoved)/float64(total) >= c.rebuildThreshold
}

// rebuildIndexLocked reconstructs the HNSW graph from scratch over the
// store's current vectors, used both when the deleted fraction crosses
// rebuildThreshold and when a persisted index.bin fails validation on load.
// Callers must already hold c.mu.
func (c *Collection) rebuildIndexLocked() {
	dim := c.store.Dimension()
	if dim == 0 {
		c.index = nil
		return
	}

	fresh := hnsw.New(dim, c.cfg)
	ids := c.store.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		vec, _, err := c.store.Get(id)
		if err != nil {
			continue
		}
		_ = fresh.Insert(id, vec)
	}
	c.index = fresh
	c.totalRemoved = 0
}

// SearchSimilar runs an approximate k-NN cosine search. pred may be nil for
// an unfiltered search. threshold, if non-nil, drops any result whose
// similarity falls below it. ef, if <= 0, defaults to the index's
// configured EfSearch.
func (c *Collection) SearchSimilar(query []float32, k, ef int, pred filter.Predicate, threshold *float64, withMetadata bool) ([]Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if c.index == nil || c.index.Size() == 0 || k <= 0 {
		return []Result{}, nil
	}
	if dim := c.store.Dimension(); dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dims, collection has %d", store.ErrDimensionMismatch, len(query), dim)
	}

	if ef <= 0 {
		ef = c.cfg.EfSearch
	}

	var raw []hnsw.Result
	var err error
	if pred != nil {
		raw, err = c.index.FilteredSearch(query, k, ef, pred, c.store.Meta, c.bruteForceFallback)
	} else {
		raw, err = c.index.Search(query, k, ef)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(raw))
	for _, r := range raw {
		sim := 1 - r.Distance
		if threshold != nil && sim < *threshold {
			continue
		}
		res := Result{ID: r.ID, Similarity: sim}
		if withMetadata {
			if meta, ok := c.store.Meta(r.ID); ok {
				res.Metadata = meta
			}
		}
		out = append(out, res)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (c *Collection) bruteForceFallback(query []float32, k int, pred filter.Predicate) ([]hnsw.FallbackResult, error) {
	res, err := c.store.SearchBrute(query, k, pred)
	if err != nil {
		return nil, err
	}
	out := make([]hnsw.FallbackResult, len(res))
	for i, r := range res {
		out[i] = hnsw.FallbackResult{ID: r.ID, Similarity: r.Similarity}
	}
	return out, nil
}

// Stats returns a snapshot of the collection's current size and index
// parameters.
func (c *Collection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Name:             c.name,
		Count:            c.store.Size(),
		Dimension:        c.store.Dimension(),
		Dirty:            c.dirty,
		RebuildThreshold: c.rebuildThreshold,
		HNSW:             c.cfg,
	}
	if c.index != nil {
		s.EntryPoint = c.index.EntryPoint()
		total := c.index.Size() + c.totalRemoved
		if total > 0 {
			s.DeletedFraction = float64(c.totalRemoved) / float64(total)
		}
	}
	return s
}
