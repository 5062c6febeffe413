package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// UploadResponse acknowledges a queued upload.
type UploadResponse struct {
	TaskID     string `json:"task_id"`
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FileName   string `json:"filename"`
	FileType   string `json:"file_type"`
}

// upload saves the multipart "file" field and queues it for ingestion.
// Unsupported extensions are rejected before anything is written.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		writeError(w, http.StatusBadRequest, "unsupported_format", "files without an extension are not supported")
		return
	}
	if !s.registry.Supports(name) {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format",
			fmt.Sprintf("%s is not one of %s", ext, strings.Join(s.registry.Extensions(), ", ")))
		return
	}

	collection := firstForm(r, "collection", "collection_name")
	documentID := r.FormValue("document_id")
	if documentID == "" {
		documentID = ingest.DocumentID(time.Now(), collection, name)
	}

	path, err := s.save(file, name)
	if err != nil {
		s.logger.Error("save upload failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", err.Error())
		return
	}

	ctx := r.Context()
	taskID := uuid.New().String()
	if err := s.tracker.Start(ctx, taskID); err != nil {
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "progress_unavailable", err.Error())
		return
	}
	_ = s.tracker.SetProgress(ctx, taskID, ingest.ProgressQueued, "File uploaded, waiting for processing")

	err = s.ingest.Submit(ingest.Job{
		TaskID:     taskID,
		FilePath:   path,
		FileName:   name,
		DocumentID: documentID,
		Collection: collection,
	})
	if err != nil {
		_ = s.tracker.SetError(ctx, taskID, err.Error())
		os.Remove(path)
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrQueueFull) || errors.Is(err, ingest.ErrPoolStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "ingest_unavailable", err.Error())
		return
	}

	s.logger.Info("upload queued", "task_id", taskID, "file", name, "document_id", documentID, "collection", collection)
	writeJSON(w, http.StatusAccepted, UploadResponse{
		TaskID:     taskID,
		DocumentID: documentID,
		Status:     string(progress.StatusProcessing),
		Message:    "File uploaded, track progress until vector storage completes",
		FileName:   name,
		FileType:   ext,
	})
}

func (s *Server) save(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) uploadProgress(w http.ResponseWriter, r *http.Request) {
	state, err := s.tracker.Status(r.Context(), mux.Vars(r)["task_id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "progress_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SearchResponse is the body of a search.
type SearchResponse struct {
	Query          string                  `json:"query"`
	Results        []document.SearchResult `json:"results"`
	TotalResults   int                     `json:"total_results"`
	ProcessingTime float64                 `json:"processing_time"`
}

func (s *Server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req search.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	results, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:          req.Query,
		Results:        results,
		TotalResults:   len(results),
		ProcessingTime: time.Since(start).Seconds(),
	})
}

// askQuestion always answers with a well-formed envelope, even on failure.
func (s *Server) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		qa.Request
		CollectionName string `json:"collection_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if req.Collection == "" {
		req.Collection = req.CollectionName
	}

	var resp qa.Response
	if req.IncludeMetadata {
		resp = s.qa.AskWithMetadata(r.Context(), req.Request)
	} else {
		resp = s.qa.Ask(r.Context(), req.Request)
	}
	writeJSON(w, http.StatusOK, resp)
}

// FeedbackRequest is a user's correction or rating of an answer.
type FeedbackRequest struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	FeedbackType   string `json:"feedback_type"`
	FeedbackDetail string `json:"feedback_detail"`
	UserID         string `json:"user_id"`
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id := uuid.New().String()
	s.logger.Info("qa feedback",
		"feedback_id", id,
		"question", req.Question,
		"answer", req.Answer,
		"type", req.FeedbackType,
		"detail", req.FeedbackDetail,
		"user_id", req.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"message":     "Feedback received",
		"feedback_id": id,
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.generation.Models(r.Context())
	if err != nil {
		s.logger.Warn("list models failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"models":  []string{},
			"current": s.generation.Model(),
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"current": s.generation.Model(),
	})
}

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	DocumentID  string  `json:"document_id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Description string  `json:"description"`
	FileType    string  `json:"file_type"`
	Department  string  `json:"department,omitempty"`
	TotalPages  int     `json:"total_pages"`
	ChunksCount int     `json:"chunks_count"`
	UploadTime  string  `json:"upload_time"`
	FileSize    int64   `json:"file_size"`
	Extraction  float64 `json:"extraction_time"`
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := s.store.WithCollection(r.URL.Query().Get("collection"))

	ids, err := store.ListDocumentIDs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_unavailable", err.Error())
		return
	}

	docs := make([]DocumentInfo, 0, len(ids))
	for _, id := range ids {
		meta, err := store.GetDocumentMetadata(ctx, id)
		if err != nil {
			s.logger.Warn("document metadata unavailable", "document_id", id, "error", err)
			meta = document.Metadata{}
		}
		count, err := store.CountDocumentChunks(ctx, id)
		if err != nil {
			s.logger.Warn("chunk count unavailable", "document_id", id, "error", err)
		}
		docs = append(docs, documentInfo(id, meta, count))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection":      store.CollectionName(),
		"documents":       docs,
		"total_documents": len(docs),
	})
}

func documentInfo(id string, meta document.Metadata, chunks int) DocumentInfo {
	info := DocumentInfo{
		DocumentID:  id,
		Title:       meta.String("title"),
		Author:      meta.String("author"),
		Description: meta.String("description"),
		FileType:    meta.String("file_type"),
		Department:  meta.String("department"),
		TotalPages:  int(number(meta["total_pages"])),
		ChunksCount: chunks,
		UploadTime:  meta.String("upload_time"),
		FileSize:    int64(number(meta["file_size"])),
		Extraction:  number(meta["extraction_time"]),
	}
	if info.Title == "" {
		info.Title = "Document " + id
	}
	if info.Author == "" {
		info.Author = "Unknown"
	}
	return info
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]
	store := s.store.WithCollection(r.URL.Query().Get("collection"))

	deleted, err := store.DeleteDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_unavailable", err.Error())
		return
	}
	// Deleting a document that has no points is still a success.
	message := "Document deleted"
	if deleted == 0 {
		message = "No chunks stored for document"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    id,
		"status":         "success",
		"message":        message,
		"deleted_chunks": deleted,
	})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.Collections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_unavailable", err.Error())
		return
	}
	if infos == nil {
		infos = []storage.CollectionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// download serves the original upload of a document. Only files inside the
// upload directory are served.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["document_id"]
	store := s.store.WithCollection(r.URL.Query().Get("collection"))

	meta, err := store.GetDocumentMetadata(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document_not_found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "storage_unavailable", err.Error())
		return
	}

	path := meta.String("file_path")
	if path == "" || !within(s.uploadDir, path) {
		writeError(w, http.StatusNotFound, "file_not_found", id)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file_not_found", id)
		return
	}

	name := meta.String("title")
	if name == "" {
		name = filepath.Base(path)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func firstForm(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}
