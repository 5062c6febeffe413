// Package api serves the document QA HTTP interface.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// Submitter queues ingestion jobs.
type Submitter interface {
	Submit(job ingest.Job) error
}

// EmbeddingProbe checks the embedding endpoint.
type EmbeddingProbe interface {
	Validate(ctx context.Context) error
}

// ModelService describes the generation endpoint.
type ModelService interface {
	Model() string
	Models(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Config holds server dependencies. MCP is optional.
type Config struct {
	Store          storage.Store
	Registry       *extract.Registry
	Search         *search.Service
	QA             *qa.Assembler
	Tracker        *progress.Tracker
	Ingest         Submitter
	Embedding      EmbeddingProbe
	Generation     ModelService
	MCP            http.Handler
	UploadDir      string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server routes HTTP requests to the services.
type Server struct {
	store          storage.Store
	registry       *extract.Registry
	search         *search.Service
	qa             *qa.Assembler
	tracker        *progress.Tracker
	ingest         Submitter
	embedding      EmbeddingProbe
	generation     ModelService
	mcp            http.Handler
	uploadDir      string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewServer creates a server. A nil logger uses slog.Default().
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 100 << 20
	}
	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = "data/uploads"
	}
	return &Server{
		store:          cfg.Store,
		registry:       cfg.Registry,
		search:         cfg.Search,
		qa:             cfg.QA,
		tracker:        cfg.Tracker,
		ingest:         cfg.Ingest,
		embedding:      cfg.Embedding,
		generation:     cfg.Generation,
		mcp:            cfg.MCP,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUpload,
		logger:         logger,
	}
}

// Router registers every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.landing).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.health).Methods(http.MethodGet)
	v1.HandleFunc("/upload", s.upload).Methods(http.MethodPost)
	v1.HandleFunc("/upload-file", s.upload).Methods(http.MethodPost)
	v1.HandleFunc("/upload-progress/{task_id}", s.uploadProgress).Methods(http.MethodGet)
	v1.HandleFunc("/search", s.searchDocuments).Methods(http.MethodPost)
	v1.HandleFunc("/qa", s.askQuestion).Methods(http.MethodPost)
	v1.HandleFunc("/qa/feedback", s.submitFeedback).Methods(http.MethodPost)
	v1.HandleFunc("/qa/models", s.listModels).Methods(http.MethodGet)
	v1.HandleFunc("/documents", s.listDocuments).Methods(http.MethodGet)
	v1.HandleFunc("/documents/{document_id}", s.deleteDocument).Methods(http.MethodDelete)
	v1.HandleFunc("/collections", s.listCollections).Methods(http.MethodGet)
	v1.HandleFunc("/download/{document_id}", s.download).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", r.URL.Path)
	})
	return r
}

// Handler wraps the router with panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	n := negroni.New()
	recovery := negroni.NewRecovery()
	recovery.PrintStack = false
	n.Use(recovery)
	n.Use(requestLogger(s.logger))
	n.UseHandler(s.Router())
	return n
}
