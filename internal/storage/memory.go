package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/embedding"
)

type memoryPoint struct {
	id      string
	vector  []float32
	payload map[string]any
}

type memoryCollection struct {
	dim    int
	points []memoryPoint
}

type memoryState struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// MemoryStore is an in-process Store using brute-force cosine search.
// It backs local runs without Qdrant and the package tests.
type MemoryStore struct {
	state      *memoryState
	collection string
}

// NewMemoryStore creates an empty store bound to collection.
func NewMemoryStore(collection string) *MemoryStore {
	if collection == "" {
		collection = DefaultCollectionName
	}
	return &MemoryStore{
		state:      &memoryState{collections: make(map[string]*memoryCollection)},
		collection: collection,
	}
}

func (m *MemoryStore) Health(context.Context) error { return nil }

func (m *MemoryStore) CollectionName() string { return m.collection }

func (m *MemoryStore) WithCollection(name string) Store {
	if name == "" || name == m.collection {
		return m
	}
	return &MemoryStore{state: m.state, collection: name}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, dim int) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	return m.ensureLocked(dim)
}

func (m *MemoryStore) ensureLocked(dim int) error {
	coll, ok := m.state.collections[m.collection]
	if !ok {
		m.state.collections[m.collection] = &memoryCollection{dim: dim}
		return nil
	}
	if coll.dim != dim {
		return fmt.Errorf("%w: collection %q has size %d, embeddings have %d",
			ErrDimensionMismatch, m.collection, coll.dim, dim)
	}
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, chunks []document.EmbeddedChunk, documentID string, meta document.Metadata) (UpsertResult, error) {
	var result UpsertResult

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	var points []memoryPoint
	dim := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			result.Skipped++
			continue
		}
		if dim == 0 {
			dim = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != dim {
			return result, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, chunk.Index, len(chunk.Embedding), dim)
		}
		points = append(points, memoryPoint{
			id:      uuid.New().String(),
			vector:  chunk.Embedding,
			payload: buildPayload(chunk, documentID, meta),
		})
	}
	if len(points) == 0 {
		return result, nil
	}

	if err := m.ensureLocked(dim); err != nil {
		return result, err
	}
	coll := m.state.collections[m.collection]
	coll.points = append(coll.points, points...)
	result.Stored = len(points)
	return result, nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, opts SearchOptions) ([]document.SearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	coll, ok := m.state.collections[m.collection]
	if !ok {
		return nil, nil
	}
	if coll.dim != len(vector) {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), coll.dim)
	}

	var results []document.SearchResult
	for _, point := range coll.points {
		if !matches(point.payload, opts.Filter) {
			continue
		}
		score := embedding.Similarity(vector, point.vector)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		results = append(results, resultFromPayload(point.id, score, point.payload))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matches(payload map[string]any, f Filter) bool {
	if f.DocumentID != "" && asString(payload[fieldDocumentID]) != f.DocumentID {
		return false
	}
	if f.PageNumber > 0 && asInt(payload[fieldPageNumber]) != f.PageNumber {
		return false
	}
	size := asInt(payload[fieldChunkSize])
	if f.MinChunkSize > 0 && size < f.MinChunkSize {
		return false
	}
	if f.MaxChunkSize > 0 && size > f.MaxChunkSize {
		return false
	}
	return true
}

func (m *MemoryStore) ListDocumentIDs(context.Context) ([]string, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	ids := make(map[string]struct{})
	if coll, ok := m.state.collections[m.collection]; ok {
		for _, point := range coll.points {
			ids[asString(point.payload[fieldDocumentID])] = struct{}{}
		}
	}
	return sortedKeys(ids), nil
}

func (m *MemoryStore) GetDocumentMetadata(_ context.Context, documentID string) (document.Metadata, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	if coll, ok := m.state.collections[m.collection]; ok {
		for _, point := range coll.points {
			if asString(point.payload[fieldDocumentID]) == documentID {
				return documentMetadata(point.payload), nil
			}
		}
	}
	return nil, ErrDocumentNotFound
}

func (m *MemoryStore) CountDocumentChunks(_ context.Context, documentID string) (int, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	count := 0
	if coll, ok := m.state.collections[m.collection]; ok {
		for _, point := range coll.points {
			if asString(point.payload[fieldDocumentID]) == documentID {
				count++
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	coll, ok := m.state.collections[m.collection]
	if !ok {
		return 0, nil
	}
	kept := coll.points[:0]
	deleted := 0
	for _, point := range coll.points {
		if asString(point.payload[fieldDocumentID]) == documentID {
			deleted++
			continue
		}
		kept = append(kept, point)
	}
	coll.points = kept
	return deleted, nil
}

func (m *MemoryStore) Collections(context.Context) ([]CollectionInfo, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	infos := make([]CollectionInfo, 0, len(m.state.collections))
	for name, coll := range m.state.collections {
		infos = append(infos, CollectionInfo{
			Name:          name,
			Status:        "Green",
			PointsCount:   uint64(len(coll.points)),
			SegmentsCount: 1,
			VectorSize:    uint64(coll.dim),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
