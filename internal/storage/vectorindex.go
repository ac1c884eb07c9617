package storage

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndexConfig mirrors VectorStoreConfig, narrowed to the
// single metric this engine uses.
type vectorIndexConfig struct {
	Dims           int
	M              int
	EfConstruction int
	EfSearch       int
}

func defaultVectorIndexConfig(dims int) vectorIndexConfig {
	return vectorIndexConfig{
		Dims:           dims,
		M:              16,
		EfConstruction: 128,
		EfSearch:       20,
	}
}

// vectorIndexMetadata is gob-persisted beside the graph export so the index
// can be reopened and its id mapping reconstructed.
type vectorIndexMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  vectorIndexConfig
}

// vectorIndex is one per-dimension HNSW index: a pure-Go coder/hnsw graph
// plus a string-id <-> internal-key mapping, persisted to a gob sidecar.
// Grounded on HNSWStore (internal/store/hnsw.go).
type vectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config vectorIndexConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

func newVectorIndex(cfg vectorIndexConfig) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &vectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces vectors by chunk id, using lazy deletion for
// replacement to avoid a known coder/hnsw issue deleting the last node.
func (v *vectorIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("storage: ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, vec := range vectors {
		if len(vec) != v.config.Dims {
			return fmt.Errorf("storage: vector has %d dims, index expects %d", len(vec), v.config.Dims)
		}
	}

	for i, id := range ids {
		if existingKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}
	return nil
}

type vectorHit struct {
	ID       string
	Distance float32
	Score    float32
}

// Search returns up to k nearest neighbors by cosine similarity.
func (v *vectorIndex) Search(query []float32, k int) ([]vectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.config.Dims {
		return nil, fmt.Errorf("storage: query has %d dims, index expects %d", len(query), v.config.Dims)
	}
	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	hits := make([]vectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		hits = append(hits, vectorHit{
			ID:       id,
			Distance: distance,
			Score:    1.0 - distance/2.0, // cosine distance in [0,2] -> similarity in [0,1]
		})
	}
	return hits, nil
}

// Delete removes ids from the mapping. The underlying graph node is orphaned
// rather than physically removed (same lazy-deletion rationale as Add).
func (v *vectorIndex) Delete(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
}

func (v *vectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.idMap[id]
	return ok
}

func (v *vectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// save persists the graph and its id mapping to <path> and <path>.meta,
// writing to temp files first and renaming for atomicity.
func (v *vectorIndex) save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: create index directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("storage: create index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("storage: export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("storage: close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("storage: rename index file: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *vectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("storage: create metadata temp file: %w", err)
	}

	meta := vectorIndexMetadata{IDMap: v.idMap, NextKey: v.nextKey, Config: v.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: encode index metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// loadVectorIndex reads a previously saved index. Returns (nil, nil) if no
// index file exists at path yet (fresh start).
func loadVectorIndex(path string) (*vectorIndex, error) {
	metaPath := path + ".meta"
	metaFile, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: open index metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorIndexMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("storage: decode index metadata: %w", err)
	}

	v := newVectorIndex(meta.Config)
	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open index file: %w", err)
	}
	defer file.Close()

	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("storage: import graph: %w", err)
	}
	return v, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
