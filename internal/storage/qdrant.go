package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/mike-a-ellis/docqa/internal/document"
)

const (
	// vectorName is the named vector holding chunk embeddings.
	vectorName = "content"

	// callTimeout bounds every request to Qdrant.
	callTimeout = 30 * time.Second

	upsertBatchSize = 100
	scrollBatchSize = uint32(100)
)

// QdrantConfig describes how to reach Qdrant.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
// Values returned by WithCollection share the underlying connection.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(cfg QdrantConfig, logger *slog.Logger) (*QdrantStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		logger:     logger,
	}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	logger.Info("connected to qdrant", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
// This is the only retried call: it runs once at startup, before any pipeline work.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: health check failed: %v", ErrStorageUnavailable, err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("%w: health check returned invalid response", ErrStorageUnavailable)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// CollectionName returns the collection this handle operates on.
func (s *QdrantStorage) CollectionName() string {
	return s.collection
}

// WithCollection returns a handle bound to name. An empty name returns s.
func (s *QdrantStorage) WithCollection(name string) Store {
	if name == "" || name == s.collection {
		return s
	}
	clone := *s
	clone.collection = name
	return &clone
}

// EnsureCollection creates the collection with cosine-distance vectors of
// size dim and payload indexes. An existing collection is reused only when
// its vector size equals dim; otherwise ErrDimensionMismatch is returned.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, dim int) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", ErrStorageUnavailable, err)
	}

	if exists {
		size, err := s.vectorSize(ctx)
		if err != nil {
			return err
		}
		if size != uint64(dim) {
			return fmt.Errorf("%w: collection %q has size %d, embeddings have %d",
				ErrDimensionMismatch, s.collection, size, dim)
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrStorageUnavailable, err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	s.logger.Info("created collection", "collection", s.collection, "dimension", dim)
	return nil
}

// createPayloadIndexes indexes the fields used in filters.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		fieldDocumentID: qdrant.FieldType_FieldTypeKeyword,
		fieldPageNumber: qdrant.FieldType_FieldTypeInteger,
		fieldChunkSize:  qdrant.FieldType_FieldTypeInteger,
		"sheet":         qdrant.FieldType_FieldTypeKeyword,
	}

	for field, fieldType := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// vectorSize reads the configured size of the content vector.
func (s *QdrantStorage) vectorSize(ctx context.Context) (uint64, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: get collection info: %v", ErrStorageUnavailable, err)
	}
	return vectorSizeOf(info), nil
}

func vectorSizeOf(info *qdrant.CollectionInfo) uint64 {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if params := vectors.GetParams(); params != nil {
		return params.GetSize()
	}
	if named := vectors.GetParamsMap().GetMap()[vectorName]; named != nil {
		return named.GetSize()
	}
	return 0
}

// Upsert stores chunks as points of documentID. Every point gets a fresh
// UUID. Chunks without an embedding are skipped with a warning. The
// collection is created on first use with the dimension of the first
// embedded chunk. Points are written in batches of 100.
func (s *QdrantStorage) Upsert(ctx context.Context, chunks []document.EmbeddedChunk, documentID string, meta document.Metadata) (UpsertResult, error) {
	var result UpsertResult

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			s.logger.Warn("Skipping chunk without embedding", "document_id", documentID, "chunk_index", chunk.Index)
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

		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(uuid.New().String()),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(chunk.Embedding...),
			}),
			Payload: qdrant.NewValueMap(buildPayload(chunk, documentID, meta)),
		})
	}

	if len(points) == 0 {
		return result, nil
	}

	if err := s.EnsureCollection(ctx, dim); err != nil {
		return result, err
	}

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		_, err := s.client.Upsert(callCtx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points[i:end],
		})
		cancel()
		if err != nil {
			return result, fmt.Errorf("%w: upsert batch %d-%d: %v", ErrStorageUnavailable, i, end, err)
		}
		result.Stored += end - i
	}

	return result, nil
}

// buildFilter translates a Filter into Qdrant conditions. It returns nil
// when no condition is set.
func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch(fieldDocumentID, f.DocumentID))
	}
	if f.PageNumber > 0 {
		must = append(must, qdrant.NewMatchInt(fieldPageNumber, int64(f.PageNumber)))
	}
	if f.MinChunkSize > 0 || f.MaxChunkSize > 0 {
		r := &qdrant.Range{}
		if f.MinChunkSize > 0 {
			r.Gte = qdrant.PtrOf(float64(f.MinChunkSize))
		}
		if f.MaxChunkSize > 0 {
			r.Lte = qdrant.PtrOf(float64(f.MaxChunkSize))
		}
		must = append(must, qdrant.NewRange(fieldChunkSize, r))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Search returns the points nearest to vector, ordered by descending score
// and filtered server-side. A missing collection yields no results.
func (s *QdrantStorage) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]document.SearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          qdrant.PtrOf(vectorName),
		Filter:         buildFilter(opts.Filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(opts.ScoreThreshold))
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		if exists, existsErr := s.client.CollectionExists(ctx, s.collection); existsErr == nil && !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search: %v", ErrStorageUnavailable, err)
	}

	results := make([]document.SearchResult, 0, len(points))
	for _, point := range points {
		results = append(results, resultFromPayload(point.GetId().GetUuid(), float64(point.GetScore()), decodePayload(point.GetPayload())))
	}
	return results, nil
}

// scroll pages through points matching filter, calling fn for each page.
func (s *QdrantStorage) scroll(ctx context.Context, filter *qdrant.Filter, withPayload *qdrant.WithPayloadSelector, fn func([]*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	for {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		points, err := s.client.Scroll(callCtx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(scrollBatchSize),
			Offset:         offset,
			WithPayload:    withPayload,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("%w: scroll: %v", ErrStorageUnavailable, err)
		}

		fn(points)

		// Stop if we got fewer results than batch size (no more pages)
		if uint32(len(points)) < scrollBatchSize {
			return nil
		}
		offset = points[len(points)-1].GetId()
	}
}

func (s *QdrantStorage) exists(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("%w: check collection: %v", ErrStorageUnavailable, err)
	}
	return ok, nil
}

// ListDocumentIDs returns the sorted unique document ids in the collection.
// A missing collection yields an empty list.
func (s *QdrantStorage) ListDocumentIDs(ctx context.Context) ([]string, error) {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return []string{}, err
	}

	ids := make(map[string]struct{})
	err = s.scroll(ctx, nil, qdrant.NewWithPayloadInclude(fieldDocumentID), func(points []*qdrant.RetrievedPoint) {
		for _, point := range points {
			if id := point.GetPayload()[fieldDocumentID].GetStringValue(); id != "" {
				ids[id] = struct{}{}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(ids), nil
}

// GetDocumentMetadata returns the payload of the first point of documentID,
// without chunk-level fields. The first point stands in for the document.
func (s *QdrantStorage) GetDocumentMetadata(ctx context.Context, documentID string) (document.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         buildFilter(Filter{DocumentID: documentID}),
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get document metadata: %v", ErrStorageUnavailable, err)
	}
	if len(points) == 0 {
		return nil, ErrDocumentNotFound
	}
	return documentMetadata(decodePayload(points[0].GetPayload())), nil
}

// CountDocumentChunks returns the exact number of points of documentID.
func (s *QdrantStorage) CountDocumentChunks(ctx context.Context, documentID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         buildFilter(Filter{DocumentID: documentID}),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStorageUnavailable, err)
	}
	return int(count), nil
}

// DeleteDocument scrolls for the point ids of documentID and deletes them by
// id. Deleting by id list works on servers without delete-by-filter support.
func (s *QdrantStorage) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	ok, err := s.exists(ctx)
	if err != nil || !ok {
		return 0, err
	}

	var ids []*qdrant.PointId
	err = s.scroll(ctx, buildFilter(Filter{DocumentID: documentID}), qdrant.NewWithPayload(false), func(points []*qdrant.RetrievedPoint) {
		for _, point := range points {
			ids = append(ids, point.GetId())
		}
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err = s.client.Delete(callCtx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete: %v", ErrStorageUnavailable, err)
	}

	s.logger.Info("deleted document", "collection", s.collection, "document_id", documentID, "points", len(ids))
	return len(ids), nil
}

// Collections describes every collection on the server.
func (s *QdrantStorage) Collections(ctx context.Context) ([]CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", ErrStorageUnavailable, err)
	}

	infos := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			s.logger.Warn("failed to read collection info", "collection", name, "error", err)
			infos = append(infos, CollectionInfo{Name: name, Status: "unknown"})
			continue
		}
		infos = append(infos, CollectionInfo{
			Name:          name,
			Status:        info.GetStatus().String(),
			PointsCount:   info.GetPointsCount(),
			SegmentsCount: info.GetSegmentsCount(),
			VectorSize:    vectorSizeOf(info),
		})
	}
	return infos, nil
}

// decodePayload converts Qdrant values into plain Go values.
func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = decodeValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return decodePayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}
