package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

// HNSW parameters for 512-dim biometric embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates
	// from HNSW to ensure enough remain after threshold filtering.
	HNSWSearchMultiplier = 3
)

const indexMetadataVersion = 1

// IndexMetadata validates a persisted HNSW index against the store it
// was built from. A mismatch means the index is stale and must be
// rebuilt.
type IndexMetadata struct {
	RecordCount int64     `json:"record_count"`
	MaxRecordID int64     `json:"max_record_id"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

// EmbeddingIndex wraps an HNSW graph over record embeddings of one
// kind. It is derived state: rebuildable from the signature store, with
// optional disk persistence for fast startup.
type EmbeddingIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	idToRecord map[int64]*store.SignatureRecord
	mu         sync.RWMutex
	path       string
}

// NewEmbeddingIndex creates a new empty index.
func NewEmbeddingIndex() *EmbeddingIndex {
	return &EmbeddingIndex{
		idToRecord: make(map[int64]*store.SignatureRecord),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromRecords builds the index from a record listing. Records
// without embeddings are skipped.
func (e *EmbeddingIndex) BuildFromRecords(records []store.SignatureRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(records) == 0 {
		e.graph = nil
		e.savedGraph = nil
		e.idToRecord = make(map[int64]*store.SignatureRecord)
		return nil
	}

	g := newGraph()
	e.idToRecord = make(map[int64]*store.SignatureRecord, len(records))

	for i := range records {
		r := &records[i]
		if len(r.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(r.ID, r.Embedding))
		e.idToRecord[r.ID] = r
	}

	e.graph = g
	return nil
}

// Search finds the k nearest neighbors to the query embedding and
// returns record ids with their cosine distances.
func (e *EmbeddingIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph == nil && e.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if e.savedGraph != nil {
		neighbors = e.savedGraph.Search(query, k)
	} else {
		neighbors = e.graph.Search(query, k)
	}

	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		// A node missing from idToRecord was deleted; HNSW has no true
		// deletion, so the lookup filter is what removes it.
		if _, ok := e.idToRecord[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		if len(n.Value) > 0 {
			// Compute the exact cosine distance from the node's own
			// vector rather than trusting graph-internal distances.
			distances = append(distances, signature.CosineDistance(query, n.Value))
		} else {
			distances = append(distances, 0)
		}
	}
	return ids, distances, nil
}

// GetRecord returns the indexed record for an id, or nil.
func (e *EmbeddingIndex) GetRecord(id int64) *store.SignatureRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idToRecord[id]
}

// Add inserts a single record into the index.
func (e *EmbeddingIndex) Add(record *store.SignatureRecord) {
	if len(record.Embedding) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graph == nil {
		e.graph = newGraph()
	}
	e.graph.Add(hnsw.MakeNode(record.ID, record.Embedding))
	e.idToRecord[record.ID] = record
}

// Delete removes a record from search results.
func (e *EmbeddingIndex) Delete(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.idToRecord, id)
}

// Count returns the number of indexed records.
func (e *EmbeddingIndex) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idToRecord)
}

// Save persists the graph and a metadata side file for staleness
// detection on the next load.
func (e *EmbeddingIndex) Save(path string, metadata IndexMetadata) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph == nil && e.savedGraph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if e.savedGraph != nil {
		err = e.savedGraph.Export(f)
	} else {
		err = e.graph.Export(f)
	}
	if err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata.Version = indexMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a persisted graph from disk. The idToRecord map is
// populated separately via RehydrateRecords once the store has been
// listed.
func (e *EmbeddingIndex) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.path = path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // No index file, will build from records
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}
	e.savedGraph = saved
	return nil
}

// LoadMetadata reads the .meta side file for a persisted index.
func LoadMetadata(path string) (IndexMetadata, error) {
	var metadata IndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// RehydrateRecords rebuilds the id lookup map after loading a persisted
// graph.
func (e *EmbeddingIndex) RehydrateRecords(records []store.SignatureRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.idToRecord = make(map[int64]*store.SignatureRecord, len(records))
	for i := range records {
		e.idToRecord[records[i].ID] = &records[i]
	}
}

// IsEmpty returns true if no graph data is loaded.
func (e *EmbeddingIndex) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph == nil && e.savedGraph == nil
}
