// Package config loads service configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig configures the HTTP server.
type AppConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
	LogLevel    string `yaml:"log_level"`
	MCP         bool   `yaml:"mcp"`
}

// QdrantConfig contains connection details for the Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// EndpointConfig points at an OpenAI-compatible API such as Ollama's /v1.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// GenerationConfig configures the answer model.
type GenerationConfig struct {
	EndpointConfig `yaml:",inline"`
	// Describe asks the model for a summary of each ingested document.
	Describe bool `yaml:"describe"`
}

// ChunkingConfig configures text splitting.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ProgressConfig selects where upload progress is kept.
type ProgressConfig struct {
	Backend    string        `yaml:"backend"` // memory or redis
	RedisAddr  string        `yaml:"redis_addr"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// IngestConfig sizes the background worker pool.
type IngestConfig struct {
	Workers    int  `yaml:"workers"`
	QueueSize  int  `yaml:"queue_size"`
	WholeSheet bool `yaml:"whole_sheet"`
}

// OCRConfig configures image text recognition.
type OCRConfig struct {
	Languages []string `yaml:"languages"`
}

// GitHubConfig names a repository directory to ingest documents from.
type GitHubConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	Token      string `yaml:"token"`
}

// Config is the root configuration.
type Config struct {
	VectorStore string           `yaml:"vector_store"` // qdrant or memory
	App         AppConfig        `yaml:"app"`
	Qdrant      QdrantConfig     `yaml:"qdrant"`
	Embedding   EndpointConfig   `yaml:"embedding"`
	Generation  GenerationConfig `yaml:"generation"`
	Chunking    ChunkingConfig   `yaml:"chunking"`
	Progress    ProgressConfig   `yaml:"progress"`
	Ingest      IngestConfig     `yaml:"ingest"`
	OCR         OCRConfig        `yaml:"ocr"`
	GitHub      GitHubConfig     `yaml:"github"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VectorStore: "qdrant",
		App: AppConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			UploadDir:   "data/uploads",
			MaxUploadMB: 100,
			LogLevel:    "info",
			MCP:         true,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "pdf_documents",
		},
		Embedding: EndpointConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "nomic-embed-text",
		},
		Generation: GenerationConfig{
			EndpointConfig: EndpointConfig{
				BaseURL: "http://localhost:11434/v1",
				Model:   "gemma3:latest",
			},
		},
		Chunking: ChunkingConfig{Size: 500, Overlap: 50},
		Progress: ProgressConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
		},
		Ingest: IngestConfig{Workers: 2, QueueSize: 100},
		OCR:    OCRConfig{Languages: []string{"kor", "eng"}},
		GitHub: GitHubConfig{Path: "docs"},
	}
}

// Load reads path, applies environment overrides and validates the result.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads $DOCQA_CONFIG, falling back to ./config.yaml.
func LoadDefault() (*Config, string, error) {
	path := getEnv("DOCQA_CONFIG", "config.yaml")
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch c.VectorStore {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("vector_store must be qdrant or memory, got %q", c.VectorStore)
	}
	switch c.Progress.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("progress.backend must be memory or redis, got %q", c.Progress.Backend)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port out of range: %d", c.App.Port)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// SlogLevel maps App.LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyEnv(cfg *Config) {
	cfg.VectorStore = getEnv("VECTOR_STORE", cfg.VectorStore)

	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvInt("APP_PORT", cfg.App.Port)
	cfg.App.UploadDir = getEnv("UPLOAD_DIR", cfg.App.UploadDir)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)

	cfg.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Qdrant.Host)
	cfg.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Qdrant.Port)
	cfg.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Qdrant.Collection = getEnv("QDRANT_COLLECTION_NAME", cfg.Qdrant.Collection)

	apiKey := os.Getenv("OPENAI_API_KEY")
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", firstNonEmpty(cfg.Embedding.APIKey, apiKey))
	cfg.Generation.BaseURL = getEnv("GENERATION_BASE_URL", cfg.Generation.BaseURL)
	cfg.Generation.Model = getEnv("GENERATION_MODEL", cfg.Generation.Model)
	cfg.Generation.APIKey = getEnv("GENERATION_API_KEY", firstNonEmpty(cfg.Generation.APIKey, apiKey))

	cfg.Chunking.Size = getEnvInt("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)

	cfg.Progress.Backend = getEnv("PROGRESS_BACKEND", cfg.Progress.Backend)
	cfg.Progress.RedisAddr = getEnv("REDIS_ADDR", cfg.Progress.RedisAddr)

	cfg.Ingest.Workers = getEnvInt("INGEST_WORKERS", cfg.Ingest.Workers)
	cfg.Ingest.QueueSize = getEnvInt("INGEST_QUEUE_SIZE", cfg.Ingest.QueueSize)

	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = splitList(v)
	}

	cfg.GitHub.Owner = getEnv("GITHUB_OWNER", cfg.GitHub.Owner)
	cfg.GitHub.Repo = getEnv("GITHUB_REPO", cfg.GitHub.Repo)
	cfg.GitHub.Path = getEnv("GITHUB_PATH", cfg.GitHub.Path)
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}
