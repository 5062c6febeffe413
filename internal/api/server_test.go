package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/chunking"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// wordBackend hashes words into a small bag-of-words vector.
type wordBackend struct{}

func (wordBackend) EmbedText(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,?!")))
		vec[h.Sum32()%16]++
	}
	return vec, nil
}

type stubModels struct {
	answer string
	err    error
}

func (m stubModels) Generate(context.Context, string, int) (string, error) { return m.answer, m.err }
func (m stubModels) Model() string                                         { return "stub-model" }
func (m stubModels) Models(context.Context) ([]string, error)              { return []string{"stub-model"}, m.err }
func (m stubModels) Ping(context.Context) error                            { return m.err }

type fullQueue struct{}

func (fullQueue) Submit(ingest.Job) error { return ingest.ErrQueueFull }

type testEnv struct {
	server *httptest.Server
	store  *storage.MemoryStore
}

func newTestEnv(t *testing.T, models stubModels, queue Submitter) *testEnv {
	t.Helper()

	registry := extract.NewRegistry()
	registry.Register(extract.NewPlainText(), ".txt")
	store := storage.NewMemoryStore("")
	embedder := embedding.NewEmbedder(wordBackend{}, nil)
	tracker := progress.NewTracker(progress.NewMemoryStore(time.Hour, 100), nil)

	if queue == nil {
		pipeline := ingest.NewPipeline(ingest.PipelineConfig{
			Registry: registry,
			Chunker:  chunking.NewChunker(500, 50),
			Embedder: embedder,
			Store:    store,
			Tracker:  tracker,
		})
		pool := ingest.NewPool(pipeline, ingest.PoolConfig{Workers: 1, QueueSize: 4})
		pool.Start(context.Background())
		t.Cleanup(pool.Stop)
		queue = pool
	}

	searchSvc := search.NewService(store, embedder, nil)
	srv := NewServer(Config{
		Store:      store,
		Registry:   registry,
		Search:     searchSvc,
		QA:         qa.NewAssembler(searchSvc, models, nil),
		Tracker:    tracker,
		Ingest:     queue,
		Embedding:  embedder,
		Generation: models,
		UploadDir:  t.TempDir(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: store}
}

func (e *testEnv) upload(t *testing.T, name, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.server.URL+"/api/v1/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) delete(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, e.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// pollProgress polls a task without failing the test, so it can run inside Eventually.
func (e *testEnv) pollProgress(taskID string) (progress.State, bool) {
	var state progress.State
	resp, err := http.Get(e.server.URL + "/api/v1/upload-progress/" + taskID)
	if err != nil {
		return state, false
	}
	defer resp.Body.Close()
	return state, json.NewDecoder(resp.Body).Decode(&state) == nil
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUploadSearchAskDelete(t *testing.T) {
	env := newTestEnv(t, stubModels{answer: "Alice is a teacher."}, nil)

	resp := env.upload(t, "people.txt", "Alice is a teacher.", map[string]string{"document_id": "people"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ack := decode[UploadResponse](t, resp)
	assert.Equal(t, "processing", ack.Status)
	assert.Equal(t, "people", ack.DocumentID)
	require.NotEmpty(t, ack.TaskID)

	require.Eventually(t, func() bool {
		state, ok := env.pollProgress(ack.TaskID)
		return ok && state.Status == progress.StatusDone && state.Progress == 100
	}, 5*time.Second, 20*time.Millisecond)

	found := decode[SearchResponse](t, env.postJSON(t, "/api/v1/search", map[string]any{"query": "Who is Alice?"}))
	require.GreaterOrEqual(t, found.TotalResults, 1)
	assert.Contains(t, found.Results[0].Text, "Alice")

	answer := decode[qa.Response](t, env.postJSON(t, "/api/v1/qa", map[string]any{"question": "Who is Alice?"}))
	assert.Contains(t, answer.Answer, "Sources:")
	assert.Contains(t, answer.Answer, "Document: people.txt")
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "people", answer.Sources[0].DocumentID)

	listed := decode[struct {
		Documents []DocumentInfo `json:"documents"`
	}](t, env.get(t, "/api/v1/documents"))
	require.Len(t, listed.Documents, 1)
	assert.Equal(t, "people.txt", listed.Documents[0].Title)
	assert.Equal(t, 1, listed.Documents[0].ChunksCount)

	dl := env.get(t, "/api/v1/download/people")
	require.Equal(t, http.StatusOK, dl.StatusCode)
	content, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Alice is a teacher.", string(content))

	del := env.delete(t, "/api/v1/documents/people")
	assert.Equal(t, http.StatusOK, del.StatusCode)
	del.Body.Close()

	ids, err := env.store.ListDocumentIDs(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ids, "people")

	scoped := decode[SearchResponse](t, env.postJSON(t, "/api/v1/search", map[string]any{"query": "Alice", "document_id": "people"}))
	assert.Equal(t, 0, scoped.TotalResults)

	again := env.delete(t, "/api/v1/documents/people")
	assert.Equal(t, http.StatusOK, again.StatusCode)
	repeated := decode[map[string]any](t, again)
	assert.Equal(t, "success", repeated["status"])
	assert.Equal(t, float64(0), repeated["deleted_chunks"])
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, stubModels{}, nil)

	resp := env.upload(t, "virus.exe", "MZ", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, "unsupported_format", decode[ErrorResponse](t, resp).Error)

	resp = env.upload(t, "README", "text", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Post(env.server.URL+"/api/v1/upload", "text/plain", strings.NewReader("no form"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUpload_QueueFull(t *testing.T) {
	env := newTestEnv(t, stubModels{}, fullQueue{})

	resp := env.upload(t, "people.txt", "Alice is a teacher.", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Detail, "queue is full")
}

func TestUploadProgress_Unknown(t *testing.T) {
	env := newTestEnv(t, stubModels{}, nil)

	state := decode[progress.State](t, env.get(t, "/api/v1/upload-progress/nope"))
	assert.Equal(t, progress.StatusUnknown, state.Status)
	assert.Equal(t, "No progress information", state.Message)
}

func TestQA_ValidationAndNoResults(t *testing.T) {
	env := newTestEnv(t, stubModels{answer: "unused"}, nil)

	resp := env.postJSON(t, "/api/v1/qa", map[string]any{"question": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	answer := decode[qa.Response](t, env.postJSON(t, "/api/v1/qa", map[string]any{"question": "Who is Alice?", "include_metadata": true}))
	assert.Equal(t, qa.NoResultsAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	require.NotNil(t, answer.Stats)
	assert.Equal(t, 0, answer.Stats.TotalResults)
}

func TestHealth(t *testing.T) {
	healthy := newTestEnv(t, stubModels{}, nil)
	resp := healthy.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[HealthResponse](t, resp).Status)

	down := newTestEnv(t, stubModels{err: errors.New("refused")}, nil)
	resp = down.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connected", body.VectorStore)
	assert.Equal(t, "disconnected", body.Generation)
}

func TestFeedbackModelsCollections(t *testing.T) {
	env := newTestEnv(t, stubModels{}, nil)

	fb := decode[map[string]string](t, env.postJSON(t, "/api/v1/qa/feedback", FeedbackRequest{Question: "q", Answer: "a", FeedbackType: "wrong"}))
	assert.Equal(t, "success", fb["status"])
	assert.NotEmpty(t, fb["feedback_id"])

	models := decode[map[string]any](t, env.get(t, "/api/v1/qa/models"))
	assert.Equal(t, "stub-model", models["current"])

	resp := env.get(t, "/api/v1/collections")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/v1/download/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/v1/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestWithin(t *testing.T) {
	assert.True(t, within("uploads", "uploads/a.txt"))
	assert.False(t, within("uploads", "uploads/../secret.txt"))
	assert.False(t, within("uploads", "/etc/passwd"))
}
