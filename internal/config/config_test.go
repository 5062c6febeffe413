package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorStore)
	assert.Equal(t, "pdf_documents", cfg.Qdrant.Collection)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 24*time.Hour, cfg.Progress.TTL)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, []string{"kor", "eng"}, cfg.OCR.Languages)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
vector_store: memory
app:
  port: 9000
  log_level: debug
qdrant:
  collection: handbook
generation:
  model: llama3
  describe: true
progress:
  backend: redis
  ttl: 2h
ingest:
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("QDRANT_COLLECTION_NAME", "override")
	t.Setenv("OCR_LANGUAGES", "eng+deu")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.VectorStore)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "override", cfg.Qdrant.Collection)
	assert.Equal(t, "llama3", cfg.Generation.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Generation.BaseURL)
	assert.True(t, cfg.Generation.Describe)
	assert.Equal(t, "redis", cfg.Progress.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Progress.TTL)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCR.Languages)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad store", "vector_store: pinecone"},
		{"bad progress", "progress:\n  backend: disk"},
		{"zero chunk", "chunking:\n  size: -1"},
		{"bad yaml", "app: [1, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
