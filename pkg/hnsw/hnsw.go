// Package hnsw implements a Hierarchical Navigable Small World graph index
// for approximate cosine-similarity nearest-neighbor search, extended with
// a diverse neighbor-selection heuristic, symmetric-edge trimming,
// deletion with entry-point replacement, and oversampled filtered search.
//
// Index owns no locks: a single Collection-level reader/writer lock (see
// the collection package) serializes all mutation, matching the
// single-writer concurrency model this index assumes. It must not be
// shared across goroutines without that external synchronization.
package hnsw

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/torinriley/vecstream/pkg/filter"
	"github.com/torinriley/vecstream/pkg/vector"
)

// ErrDimensionMismatch is returned by Insert and Search when a vector's
// length does not match the index's fixed dimension.
var ErrDimensionMismatch = errors.New("vecstream: hnsw dimension mismatch")

// Config holds the tunable HNSW construction and search parameters.
type Config struct {
	M              int   // target neighbors per node per layer above 0 (default 16)
	EfConstruction int   // candidate pool size during insert (default 200)
	EfSearch       int   // candidate pool size during search (default 50)
	Seed           int64 // RNG seed for level assignment, fixed for determinism
}

// Mmax0 returns the hard cap on layer-0 neighbor lists: 2*M.
func (c Config) Mmax0() int { return 2 * c.M }

// mL returns the level-multiplier 1/ln(M) used by the level distribution.
func (c Config) mL() float64 { return 1.0 / math.Log(float64(c.M)) }

// DefaultConfig returns reasonable default parameters with a fixed,
// deterministic seed. Callers that need varied graphs across runs should
// set Seed explicitly.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
		Seed:           1,
	}
}

// Result is one ranked hit, ascending by Distance (1-cosine-similarity).
type Result struct {
	ID       string
	Distance float64
}

// MetadataLookup resolves a stored id's metadata document, for filtered
// search predicate evaluation. The index itself holds no metadata.
type MetadataLookup func(id string) (map[string]any, bool)

// FallbackResult is one exact hit returned by a BruteForceFallback.
type FallbackResult struct {
	ID         string
	Similarity float64
}

// BruteForceFallback runs an exact filtered k-NN search, used when the
// oversampled candidate pool cannot surface enough matches.
type BruteForceFallback func(query []float32, k int, pred filter.Predicate) ([]FallbackResult, error)

type node struct {
	id        string
	vector    []float32 // L2-normalized copy, memoized at insert
	level     int
	neighbors [][]string // neighbors[l] for 0 <= l <= level
}

// Index is a multi-layer proximity graph over vector identifiers.
type Index struct {
	cfg        Config
	dimension  int
	rng        *rand.Rand
	nodes      map[string]*node
	entryPoint string
	topLevel   int
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, cfg Config) *Index {
	if cfg.M <= 0 {
		cfg = DefaultConfig()
	}
	return &Index{
		cfg:       cfg,
		dimension: dimension,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		nodes:     make(map[string]*node),
	}
}

// Config returns the index's construction/search parameters.
func (idx *Index) Config() Config { return idx.cfg }

// Size returns the number of live nodes.
func (idx *Index) Size() int { return len(idx.nodes) }

// EntryPoint returns the current entry point id, or "" if the index is empty.
func (idx *Index) EntryPoint() string { return idx.entryPoint }

func (idx *Index) mmax(level int) int {
	if level == 0 {
		return idx.cfg.Mmax0()
	}
	return idx.cfg.M
}

func (idx *Index) randomLevel() int {
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * idx.cfg.mL()))
}

// Insert adds id with vector vec to the graph. Insert failures are atomic:
// no partial edges are left behind.
func (idx *Index) Insert(id string, vec []float32) error {
	if len(vec) != idx.dimension {
		return ErrDimensionMismatch
	}

	normalized := vector.Normalize(vec)
	level := idx.randomLevel()

	if len(idx.nodes) == 0 {
		idx.nodes[id] = newNode(id, normalized, level)
		idx.entryPoint = id
		idx.topLevel = level
		return nil
	}

	epLevel := idx.topLevel
	ep := idx.entryPoint

	for l := epLevel; l > level; l-- {
		ep = idx.searchLayerSingle(normalized, ep, l)
	}

	n := newNode(id, normalized, level)
	idx.nodes[id] = n

	for l := min(level, epLevel); l >= 0; l-- {
		candidates := idx.searchLayer(normalized, ep, idx.cfg.EfConstruction, l)
		selected := idx.selectNeighborsDiverse(normalized, candidates, idx.cfg.M)
		n.neighbors[l] = selected

		// iterate a copy: a trim inside addBackEdge may remove an entry from
		// n.neighbors[l], which shares its backing array with selected.
		for _, nbID := range append([]string(nil), selected...) {
			idx.addBackEdge(nbID, id, l)
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > epLevel {
		idx.entryPoint = id
		idx.topLevel = level
	}
	return nil
}

func newNode(id string, vec []float32, level int) *node {
	n := &node{id: id, vector: vec, level: level, neighbors: make([][]string, level+1)}
	for i := range n.neighbors {
		n.neighbors[i] = make([]string, 0, 8)
	}
	return n
}

// addBackEdge adds the reverse edge (nbID -> id) at layer l. If nbID's list
// now overflows Mmax(l) it is re-trimmed to the closest Mmax(l) neighbors,
// and every edge dropped by the trim is removed from its other endpoint as
// well, keeping the graph undirected.
func (idx *Index) addBackEdge(nbID, id string, l int) {
	nb, ok := idx.nodes[nbID]
	if !ok || len(nb.neighbors) <= l {
		return
	}

	nb.neighbors[l] = append(nb.neighbors[l], id)

	limit := idx.mmax(l)
	if len(nb.neighbors[l]) <= limit {
		return
	}

	kept := idx.selectClosest(nb.vector, nb.neighbors[l], limit)
	keptSet := make(map[string]bool, len(kept))
	for _, kid := range kept {
		keptSet[kid] = true
	}
	for _, dropped := range nb.neighbors[l] {
		if keptSet[dropped] {
			continue
		}
		if other, ok := idx.nodes[dropped]; ok && l < len(other.neighbors) {
			other.neighbors[l] = removeID(other.neighbors[l], nbID)
		}
	}
	nb.neighbors[l] = kept
}

// Remove erases id from every neighbor list at every layer it participated
// in, and replaces the entry point if necessary.
func (idx *Index) Remove(id string) {
	n, ok := idx.nodes[id]
	if !ok {
		return
	}

	for l := 0; l <= n.level; l++ {
		for _, nbID := range n.neighbors[l] {
			nb, ok := idx.nodes[nbID]
			if !ok || len(nb.neighbors) <= l {
				continue
			}
			nb.neighbors[l] = removeID(nb.neighbors[l], id)
		}
	}

	delete(idx.nodes, id)

	if idx.entryPoint == id {
		idx.replaceEntryPoint()
	}
}

// replaceEntryPoint picks a remaining node of maximum level, breaking ties
// on the smallest id so the choice is stable regardless of map iteration
// order.
func (idx *Index) replaceEntryPoint() {
	best := ""
	bestLevel := -1
	for nid, n := range idx.nodes {
		if n.level > bestLevel || (n.level == bestLevel && nid < best) {
			bestLevel = n.level
			best = nid
		}
	}
	idx.entryPoint = best
	if best == "" {
		idx.topLevel = 0
	} else {
		idx.topLevel = bestLevel
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Search returns the k nearest neighbors of query, ascending by distance,
// ties broken by ascending id.
func (idx *Index) Search(query []float32, k, ef int) ([]Result, error) {
	if len(query) != idx.dimension {
		return nil, ErrDimensionMismatch
	}
	if len(idx.nodes) == 0 || k <= 0 {
		return []Result{}, nil
	}

	normalized := vector.Normalize(query)
	cur := idx.entryPoint
	for l := idx.topLevel; l >= 1; l-- {
		cur = idx.searchLayerSingle(normalized, cur, l)
	}

	efEff := ef
	if efEff < k {
		efEff = k
	}
	candidates := idx.searchLayer(normalized, cur, efEff, 0)
	return idx.toResults(normalized, candidates, k), nil
}

// FilteredSearch runs a candidate-pool search with an inflated pool,
// doubling the oversample multiplier (capped at 64) until enough matches
// pass pred, applying the predicate to the expanded pool. If the capped
// pool still yields fewer than k matches, it falls back to an exact
// brute-force search to guarantee correctness over soundness.
func (idx *Index) FilteredSearch(query []float32, k, ef int, pred filter.Predicate, lookup MetadataLookup, fallback BruteForceFallback) ([]Result, error) {
	if len(query) != idx.dimension {
		return nil, ErrDimensionMismatch
	}
	if len(idx.nodes) == 0 || k <= 0 {
		return []Result{}, nil
	}

	normalized := vector.Normalize(query)
	cur := idx.entryPoint
	for l := idx.topLevel; l >= 1; l-- {
		cur = idx.searchLayerSingle(normalized, cur, l)
	}

	oversample := 10
	var filtered []Result
	for {
		efEff := ef
		if want := k * oversample; want > efEff {
			efEff = want
		}
		candidates := idx.searchLayer(normalized, cur, efEff, 0)
		filtered = idx.filterCandidates(normalized, candidates, pred, lookup)

		if len(filtered) >= k || oversample >= 64 {
			break
		}
		oversample *= 2
		if oversample > 64 {
			oversample = 64
		}
	}

	if len(filtered) < k {
		fallbackResults, err := fallback(query, k, pred)
		if err != nil {
			return nil, err
		}
		out := make([]Result, len(fallbackResults))
		for i, r := range fallbackResults {
			out[i] = Result{ID: r.ID, Distance: 1 - r.Similarity}
		}
		return out, nil
	}

	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

func (idx *Index) filterCandidates(query []float32, candidateIDs []string, pred filter.Predicate, lookup MetadataLookup) []Result {
	results := make([]Result, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		meta, _ := lookup(id)
		if !filter.Match(pred, meta) {
			continue
		}
		n := idx.nodes[id]
		results = append(results, Result{ID: id, Distance: vector.CosineDistance(query, n.vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	return results
}

func (idx *Index) toResults(query []float32, candidateIDs []string, k int) []Result {
	results := make([]Result, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		n := idx.nodes[id]
		results = append(results, Result{ID: id, Distance: vector.CosineDistance(query, n.vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// searchLayerSingle performs a greedy ef=1 descent from entryID toward query
// at the given layer, used to refine the entry point between layers.
func (idx *Index) searchLayerSingle(query []float32, entryID string, level int) string {
	current := entryID
	currentDist := vector.CosineDistance(query, idx.nodes[current].vector)

	for {
		changed := false
		for _, nbID := range idx.nodes[current].neighbors[level] {
			nb := idx.nodes[nbID]
			dist := vector.CosineDistance(query, nb.vector)
			if dist < currentDist {
				current = nbID
				currentDist = dist
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current
}

// searchLayer runs the dynamic candidate-pool search at the given layer,
// returning up to ef ids ascending by distance.
func (idx *Index) searchLayer(query []float32, entryID string, ef, level int) []string {
	visited := map[string]bool{entryID: true}

	candidates := &distHeap{}
	results := &distHeap{}

	entryDist := vector.CosineDistance(query, idx.nodes[entryID].vector)
	heap.Push(candidates, distItem{id: entryID, dist: entryDist})
	heap.Push(results, distItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)

		if results.Len() >= ef && closest.dist > (*results)[0].dist {
			break
		}

		n, ok := idx.nodes[closest.id]
		if !ok || level >= len(n.neighbors) {
			continue
		}

		for _, nbID := range n.neighbors[level] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true

			nb := idx.nodes[nbID]
			dist := vector.CosineDistance(query, nb.vector)

			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, distItem{id: nbID, dist: dist})
				heap.Push(results, distItem{id: nbID, dist: dist, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]string, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(distItem).id
	}
	return out
}

// selectNeighborsDiverse implements the "diverse" heuristic required for
// recall: candidates sorted by ascending distance to owner are kept only
// if they are not closer to any already-kept neighbor than to owner,
// preventing redundant near-collinear neighbors.
func (idx *Index) selectNeighborsDiverse(owner []float32, candidateIDs []string, m int) []string {
	type scored struct {
		id   string
		dist float64
	}
	scoredCandidates := make([]scored, len(candidateIDs))
	for i, id := range candidateIDs {
		scoredCandidates[i] = scored{id: id, dist: vector.CosineDistance(owner, idx.nodes[id].vector)}
	}
	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].dist < scoredCandidates[j].dist })

	kept := make([]string, 0, m)
	for _, c := range scoredCandidates {
		if len(kept) >= m {
			break
		}
		good := true
		for _, n := range kept {
			distCN := vector.CosineDistance(idx.nodes[c.id].vector, idx.nodes[n].vector)
			if c.dist >= distCN {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c.id)
		}
	}
	return kept
}

// selectClosest keeps the m candidates closest to owner, used when
// re-trimming a neighbor list that has grown past its Mmax cap.
func (idx *Index) selectClosest(owner []float32, candidateIDs []string, m int) []string {
	if len(candidateIDs) <= m {
		return candidateIDs
	}
	type scored struct {
		id   string
		dist float64
	}
	scoredCandidates := make([]scored, len(candidateIDs))
	for i, id := range candidateIDs {
		scoredCandidates[i] = scored{id: id, dist: vector.CosineDistance(owner, idx.nodes[id].vector)}
	}
	sort.Slice(scoredCandidates, func(i, j int) bool { return scoredCandidates[i].dist < scoredCandidates[j].dist })

	out := make([]string, m)
	for i := 0; i < m; i++ {
		out[i] = scoredCandidates[i].id
	}
	return out
}

// distItem is one entry in a min-heap (candidates to expand) or max-heap
// (best-ef results seen), distinguished by isMax.
type distItem struct {
	id    string
	dist  float64
	isMax bool
}

type distHeap []distItem

func (h distHeap) Len() int { return len(h) }
func (h distHeap) Less(i, j int) bool {
	if h[i].isMax {
		return h[i].dist > h[j].dist
	}
	return h[i].dist < h[j].dist
}
func (h distHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)   { *h = append(*h, x.(distItem)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
