package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	Embedding   string `json:"embedding"`
	Generation  string `json:"generation"`
	Timestamp   string `json:"timestamp"`
}

// health checks the vector store and both model endpoints.
// Any unreachable dependency yields 503.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		VectorStore: probe(r.Context(), s.store.Health),
		Embedding:   probe(r.Context(), s.embedding.Validate),
		Generation:  probe(r.Context(), s.generation.Ping),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	if response.VectorStore == "connected" && response.Embedding == "connected" && response.Generation == "connected" {
		response.Status = "healthy"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "unhealthy"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

func probe(parent context.Context, check func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(parent, healthTimeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
