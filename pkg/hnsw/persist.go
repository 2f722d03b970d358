package hnsw

import (
	"errors"

	"github.com/torinriley/vecstream/pkg/vector"
)

// ErrInconsistentSnapshot is returned by Import when a decoded topology
// snapshot references ids, levels, or neighbor slots that cannot belong to
// the vectors supplied alongside it. Collection treats this as a signal to
// rebuild the index from scratch rather than trust a corrupt index.bin.
var ErrInconsistentSnapshot = errors.New("vecstream: inconsistent hnsw snapshot")

// NodeTopology is the per-node graph shape Export/Import round-trip: the
// level it was assigned and its neighbor ids at every layer 0..level. It
// carries no vector data, since the index never owns vectors independently
// of the store that persists them.
type NodeTopology struct {
	Level     int
	Neighbors [][]string
}

// Snapshot is the full graph topology of an Index, independent of the
// vectors it was built over. Saving an index only requires persisting a
// Snapshot plus whatever already persists the vectors themselves.
type Snapshot struct {
	EntryPoint string
	TopLevel   int
	Nodes      map[string]NodeTopology
}

// Export captures the current graph topology for persistence.
func (idx *Index) Export() Snapshot {
	nodes := make(map[string]NodeTopology, len(idx.nodes))
	for id, n := range idx.nodes {
		neighbors := make([][]string, len(n.neighbors))
		for l, ns := range n.neighbors {
			cp := make([]string, len(ns))
			copy(cp, ns)
			neighbors[l] = cp
		}
		nodes[id] = NodeTopology{Level: n.level, Neighbors: neighbors}
	}
	return Snapshot{
		EntryPoint: idx.entryPoint,
		TopLevel:   idx.topLevel,
		Nodes:      nodes,
	}
}

// Import rebuilds an Index from a topology Snapshot and the vectors it was
// built over (keyed by id, raw/un-normalized). It validates every neighbor
// reference before accepting the snapshot: an edge to an unknown id, an
// edge at a layer beyond its owner's level, or a missing entry point all
// fail with ErrInconsistentSnapshot so the caller can rebuild instead of
// operating on a corrupt graph.
func Import(dimension int, cfg Config, vectors map[string][]float32, snap Snapshot) (*Index, error) {
	idx := New(dimension, cfg)

	for id, vec := range vectors {
		if len(vec) != dimension {
			return nil, ErrInconsistentSnapshot
		}
		topo, ok := snap.Nodes[id]
		if !ok {
			return nil, ErrInconsistentSnapshot
		}
		idx.nodes[id] = &node{
			id:        id,
			vector:    vector.Normalize(vec),
			level:     topo.Level,
			neighbors: make([][]string, topo.Level+1),
		}
	}

	if len(idx.nodes) != len(snap.Nodes) {
		return nil, ErrInconsistentSnapshot
	}

	for id, topo := range snap.Nodes {
		n := idx.nodes[id]
		if len(topo.Neighbors) != topo.Level+1 {
			return nil, ErrInconsistentSnapshot
		}
		for l, ns := range topo.Neighbors {
			for _, nbID := range ns {
				nb, ok := idx.nodes[nbID]
				if !ok || l >= len(nb.neighbors) {
					return nil, ErrInconsistentSnapshot
				}
			}
			cp := make([]string, len(ns))
			copy(cp, ns)
			n.neighbors[l] = cp
		}
	}

	if len(idx.nodes) == 0 {
		return idx, nil
	}

	if snap.EntryPoint == "" {
		return nil, ErrInconsistentSnapshot
	}
	if _, ok := idx.nodes[snap.EntryPoint]; !ok {
		return nil, ErrInconsistentSnapshot
	}
	idx.entryPoint = snap.EntryPoint
	idx.topLevel = snap.TopLevel

	return idx, nil
}
