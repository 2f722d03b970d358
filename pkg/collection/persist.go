package collection

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/torinriley/vecstream/pkg/hnsw"
)

const (
	vectorsMagic  = "VSV1"
	indexMagic    = "VSH1"
	formatVersion = 1
)

// ErrNoDirectory is returned by Save/Load when the collection has no
// backing directory configured.
var ErrNoDirectory = errors.New("vecstream: collection has no backing directory")

// diskConfig is the JSON shape of config.json.
type diskConfig struct {
	Version          int     `json:"version"`
	Dimension        int     `json:"dimension"`
	Count            int     `json:"count"`
	M                int     `json:"m"`
	EfConstruction   int     `json:"ef_construction"`
	EfSearch         int     `json:"ef_search"`
	Seed             int64   `json:"seed"`
	RebuildThreshold float64 `json:"rebuild_threshold"`
}

// Save persists the collection to its backing directory: vectors.npy,
// ids.json, metadata.json, index.bin, and config.json, written via a
// tmp-file-plus-rename so a crash mid-write never leaves a half-updated
// file behind.
func (c *Collection) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Collection) saveLocked() error {
	if c.dir == "" {
		return ErrNoDirectory
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("vecstream: create collection dir: %w", err)
	}
	writeLock(c.dir)

	ids := c.store.IDs()
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	metadata := make(map[string]any, len(ids))
	for i, id := range ids {
		vec, meta, err := c.store.Get(id)
		if err != nil {
			return fmt.Errorf("vecstream: save: %w", err)
		}
		vectors[i] = vec
		metadata[id] = meta
	}

	dim := c.store.Dimension()

	if err := writeVectorsFile(filepath.Join(c.dir, "vectors.npy"), dim, vectors); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(c.dir, "ids.json"), ids); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(c.dir, "metadata.json"), metadata); err != nil {
		return err
	}

	var snap hnsw.Snapshot
	if c.index != nil {
		snap = c.index.Export()
	}
	if err := writeIndexFile(filepath.Join(c.dir, "index.bin"), c.cfg, ids, snap); err != nil {
		return err
	}

	cfg := diskConfig{
		Version:          formatVersion,
		Dimension:        dim,
		Count:            len(ids),
		M:                c.cfg.M,
		EfConstruction:   c.cfg.EfConstruction,
		EfSearch:         c.cfg.EfSearch,
		Seed:             c.cfg.Seed,
		RebuildThreshold: c.rebuildThreshold,
	}
	if err := writeJSONFile(filepath.Join(c.dir, "config.json"), cfg); err != nil {
		return err
	}

	c.dirty = false
	return nil
}

// Load reads a collection previously written by Save from dir. If
// index.bin is missing or fails to validate against the loaded vectors,
// Load logs a warning and rebuilds the HNSW graph from the vectors instead
// of failing outright.
func Load(name, dir string) (*Collection, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}

	cfgBytes, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("vecstream: load config: %w", err)
	}
	var dcfg diskConfig
	if err := json.Unmarshal(cfgBytes, &dcfg); err != nil {
		return nil, fmt.Errorf("vecstream: parse config.json: %w", err)
	}

	var ids []string
	idBytes, err := os.ReadFile(filepath.Join(dir, "ids.json"))
	if err != nil {
		return nil, fmt.Errorf("vecstream: load ids: %w", err)
	}
	if err := json.Unmarshal(idBytes, &ids); err != nil {
		return nil, fmt.Errorf("vecstream: parse ids.json: %w", err)
	}

	vectors, vdim, err := readVectorsFile(filepath.Join(dir, "vectors.npy"))
	if err != nil {
		return nil, fmt.Errorf("vecstream: load vectors: %w", err)
	}
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("vecstream: vectors.npy has %d rows, ids.json has %d entries", len(vectors), len(ids))
	}

	var metadata map[string]map[string]any
	metaBytes, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("vecstream: load metadata: %w", err)
	}
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return nil, fmt.Errorf("vecstream: parse metadata.json: %w", err)
	}

	cfg := hnsw.Config{M: dcfg.M, EfConstruction: dcfg.EfConstruction, EfSearch: dcfg.EfSearch, Seed: dcfg.Seed}
	c, err := New(name, dir, cfg)
	if err != nil {
		return nil, err
	}
	c.SetRebuildThreshold(dcfg.RebuildThreshold)

	for i, id := range ids {
		if err := c.store.Add(id, vectors[i], metadata[id]); err != nil {
			return nil, fmt.Errorf("vecstream: rebuild store for %q: %w", id, err)
		}
	}

	if dcfg.Dimension != 0 && vdim != 0 && dcfg.Dimension != vdim {
		log.Printf("vecstream: collection %q: config dimension %d disagrees with vectors.npy dimension %d, trusting vectors.npy", name, dcfg.Dimension, vdim)
	}

	// An empty collection has no dimension yet; leave the index nil so the
	// first AddVector fixes it, exactly as on a fresh Collection.
	if len(ids) == 0 {
		writeLock(dir)
		return c, nil
	}

	snap, err := readIndexFile(filepath.Join(dir, "index.bin"), ids)
	if err != nil {
		log.Printf("vecstream: collection %q: index.bin unreadable (%v), rebuilding from vectors", name, err)
		c.rebuildIndexLocked()
		writeLock(dir)
		return c, nil
	}

	vectorsByID := make(map[string][]float32, len(ids))
	for i, id := range ids {
		vectorsByID[id] = vectors[i]
	}

	idx, err := hnsw.Import(c.store.Dimension(), cfg, vectorsByID, snap)
	if err != nil {
		log.Printf("vecstream: collection %q: index.bin failed validation (%v), rebuilding from vectors", name, err)
		c.rebuildIndexLocked()
	} else {
		c.index = idx
	}

	writeLock(dir)
	return c, nil
}

func writeVectorsFile(path string, dim int, vectors [][]float32) error {
	var buf bytes.Buffer
	buf.WriteString(vectorsMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(len(vectors)))
	binary.Write(&buf, binary.LittleEndian, uint32(dim))
	for _, v := range vectors {
		for _, f := range v {
			binary.Write(&buf, binary.LittleEndian, f)
		}
	}
	return writeAtomic(path, buf.Bytes())
}

func readVectorsFile(path string) ([][]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < 12 || string(data[:4]) != vectorsMagic {
		return nil, 0, errors.New("vecstream: bad vectors.npy magic")
	}
	r := bytes.NewReader(data[4:])
	var n, d uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return nil, 0, err
	}

	vectors := make([][]float32, n)
	for i := range vectors {
		row := make([]float32, d)
		for j := range row {
			if err := binary.Read(r, binary.LittleEndian, &row[j]); err != nil {
				return nil, 0, err
			}
		}
		vectors[i] = row
	}
	return vectors, int(d), nil
}

// writeIndexFile encodes the graph topology: magic "VSH1", uint32 M,
// uint32 Mmax0, uint32 efConstruction, uint64 seed, uint32 entry point
// length plus entry point bytes (0 for none), then for each id in ids.json
// row order a uint8 level followed by, for every layer 0..level, a uint32
// neighbor count and the neighbors as uint32 rows into ids.json.
func writeIndexFile(path string, cfg hnsw.Config, ids []string, snap hnsw.Snapshot) error {
	rowOf := make(map[string]uint32, len(ids))
	for i, id := range ids {
		rowOf[id] = uint32(i)
	}

	var buf bytes.Buffer
	buf.WriteString(indexMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.M))
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.Mmax0()))
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.EfConstruction))
	binary.Write(&buf, binary.LittleEndian, uint64(cfg.Seed))

	ep := []byte(snap.EntryPoint)
	binary.Write(&buf, binary.LittleEndian, uint32(len(ep)))
	buf.Write(ep)

	for _, id := range ids {
		topo := snap.Nodes[id]
		buf.WriteByte(byte(topo.Level))
		for l := 0; l <= topo.Level; l++ {
			var ns []string
			if l < len(topo.Neighbors) {
				ns = topo.Neighbors[l]
			}
			binary.Write(&buf, binary.LittleEndian, uint32(len(ns)))
			for _, nbID := range ns {
				row, ok := rowOf[nbID]
				if !ok {
					return fmt.Errorf("vecstream: index.bin: neighbor %q not in id list", nbID)
				}
				binary.Write(&buf, binary.LittleEndian, row)
			}
		}
	}

	return writeAtomic(path, buf.Bytes())
}

func readIndexFile(path string, ids []string) (hnsw.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hnsw.Snapshot{}, err
	}
	if len(data) < 4 || string(data[:4]) != indexMagic {
		return hnsw.Snapshot{}, errors.New("vecstream: bad index.bin magic")
	}
	r := bytes.NewReader(data[4:])

	var m, mmax0, efc uint32
	var seed uint64
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return hnsw.Snapshot{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &mmax0); err != nil {
		return hnsw.Snapshot{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &efc); err != nil {
		return hnsw.Snapshot{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &seed); err != nil {
		return hnsw.Snapshot{}, err
	}
	if mmax0 != 2*m {
		return hnsw.Snapshot{}, errors.New("vecstream: index.bin header inconsistent: mmax0 != 2*m")
	}

	var epLen uint32
	if err := binary.Read(r, binary.LittleEndian, &epLen); err != nil {
		return hnsw.Snapshot{}, err
	}
	epBytes := make([]byte, epLen)
	if epLen > 0 {
		if _, err := io.ReadFull(r, epBytes); err != nil {
			return hnsw.Snapshot{}, err
		}
	}

	nodes := make(map[string]hnsw.NodeTopology, len(ids))
	topLevel := 0
	for _, id := range ids {
		levelByte, err := r.ReadByte()
		if err != nil {
			return hnsw.Snapshot{}, err
		}
		level := int(levelByte)
		if level > topLevel {
			topLevel = level
		}
		neighbors := make([][]string, level+1)
		for l := range neighbors {
			var cnt uint32
			if err := binary.Read(r, binary.LittleEndian, &cnt); err != nil {
				return hnsw.Snapshot{}, err
			}
			layer := make([]string, cnt)
			for j := range layer {
				var row uint32
				if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
					return hnsw.Snapshot{}, err
				}
				if int(row) >= len(ids) {
					return hnsw.Snapshot{}, errors.New("vecstream: index.bin neighbor row out of range")
				}
				layer[j] = ids[row]
			}
			neighbors[l] = layer
		}
		nodes[id] = hnsw.NodeTopology{Level: level, Neighbors: neighbors}
	}
	if r.Len() != 0 {
		return hnsw.Snapshot{}, errors.New("vecstream: index.bin has trailing bytes")
	}

	return hnsw.Snapshot{
		EntryPoint: string(epBytes),
		TopLevel:   topLevel,
		Nodes:      nodes,
	}, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("vecstream: encode %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes data to a temp file alongside path, fsyncs it, then
// renames it into place, so a crash mid-write never leaves a torn file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("vecstream: open %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vecstream: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vecstream: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vecstream: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vecstream: rename %s: %w", tmp, err)
	}
	return nil
}

// writeLock writes an advisory lock file recording the current process id.
// It never blocks and never fails the caller: a stale lock from a crashed
// process is only ever informational, never enforced.
func writeLock(dir string) {
	path := filepath.Join(dir, ".lock")
	if existing, err := os.ReadFile(path); err == nil {
		log.Printf("vecstream: found existing lock file %s (contents: %s); overwriting", path, bytes.TrimSpace(existing))
	}
	pid := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(pid), 0o644); err != nil {
		log.Printf("vecstream: could not write lock file %s: %v", path, err)
	}
}
