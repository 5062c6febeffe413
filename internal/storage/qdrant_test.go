//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// setupTestStorage creates a storage instance bound to a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T) *QdrantStorage {
	storage, err := NewQdrantStorage(QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "test_" + uuid.New().String()[:8],
	}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	t.Cleanup(func() {
		_ = storage.client.DeleteCollection(context.Background(), storage.collection)
		storage.Close()
	})
	return storage
}

func unitVector(dim, hot int) []float32 {
	vec := make([]float32, dim)
	vec[hot] = 1
	return vec
}

func TestUpsertSearchRoundTrip(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	chunks := []document.EmbeddedChunk{
		{Chunk: document.Chunk{Text: "Alice is a teacher.", Index: 0, Size: 19, PageNumber: 1}, Embedding: unitVector(8, 0)},
		{Chunk: document.Chunk{Text: "Bob is a baker.", Index: 1, Size: 15, PageNumber: 2}, Embedding: unitVector(8, 1)},
		{Chunk: document.Chunk{Text: "no vector", Index: 2, Size: 9}},
	}

	result, err := storage.Upsert(ctx, chunks, "doc-1", document.Metadata{"title": "People", "total_pages": 2})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Stored: 2, Skipped: 1}, result)

	results, err := storage.Search(ctx, unitVector(8, 0), SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Alice is a teacher.", results[0].Text)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, 1, results[0].PageNumber)
	assert.Equal(t, "People", results[0].Metadata["title"])
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)

	results, err = storage.Search(ctx, unitVector(8, 0), SearchOptions{Limit: 5, Filter: Filter{PageNumber: 2}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Bob is a baker.", results[0].Text)
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.EnsureCollection(ctx, 8))
	require.NoError(t, storage.EnsureCollection(ctx, 8))

	err := storage.EnsureCollection(ctx, 16)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestListAndDeleteDocuments(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	// More than one scroll page for the deleted document.
	var many []document.EmbeddedChunk
	for i := 0; i < 150; i++ {
		many = append(many, document.EmbeddedChunk{
			Chunk:     document.NewChunk(fmt.Sprintf("chunk %d", i)),
			Embedding: unitVector(4, i%4),
		})
	}
	_, err := storage.Upsert(ctx, many, "big", nil)
	require.NoError(t, err)
	_, err = storage.Upsert(ctx, many[:3], "small", document.Metadata{"title": "Small"})
	require.NoError(t, err)

	ids, err := storage.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"big", "small"}, ids)

	count, err := storage.CountDocumentChunks(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, 150, count)

	meta, err := storage.GetDocumentMetadata(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, "Small", meta["title"])

	deleted, err := storage.DeleteDocument(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, 150, deleted)

	ids, err = storage.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, ids)

	results, err := storage.Search(ctx, unitVector(4, 0), SearchOptions{Limit: 10, Filter: Filter{DocumentID: "big"}})
	require.NoError(t, err)
	assert.Empty(t, results)

	deleted, err = storage.DeleteDocument(ctx, "big")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = storage.GetDocumentMetadata(ctx, "big")
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
}

func TestMissingCollection(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	ids, err := storage.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	deleted, err := storage.DeleteDocument(ctx, "anything")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	results, err := storage.Search(ctx, unitVector(4, 0), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCollections(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.EnsureCollection(ctx, 4))

	infos, err := storage.Collections(ctx)
	require.NoError(t, err)

	var found *CollectionInfo
	for i := range infos {
		if infos[i].Name == storage.CollectionName() {
			found = &infos[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, uint64(4), found.VectorSize)
}
