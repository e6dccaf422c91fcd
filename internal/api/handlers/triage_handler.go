package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

// ExtractionService is the application entry point the triage handler
// depends on.
type ExtractionService interface {
	Extract(ctx context.Context, text string, clientFeatures []string) *entities.ExtractionResult
}

// TriageHandler handles triage extraction HTTP requests
type TriageHandler struct {
	service ExtractionService
}

// NewTriageHandler creates a new triage handler
func NewTriageHandler(service ExtractionService) *TriageHandler {
	return &TriageHandler{
		service: service,
	}
}

type triageRequest struct {
	Text        string   `json:"text"`
	Want        string   `json:"want"`
	FeaturesMap []string `json:"featuresMap"`
}

// Extract handles POST /api/triage
func (h *TriageHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Absent want defaults to extraction, anything else is rejected
	// before touching the registry or the extractor.
	if req.Want == "" {
		req.Want = "extract"
	}
	if req.Want != "extract" {
		respondWithError(w, http.StatusBadRequest, "only 'extract' supported for now")
		return
	}

	result := h.service.Extract(r.Context(), req.Text, req.FeaturesMap)
	respondWithJSON(w, http.StatusOK, result)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
