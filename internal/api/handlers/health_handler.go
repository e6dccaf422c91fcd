package handlers

import (
	"net/http"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

// RegistryCache exposes the last built registry snapshot without
// triggering a fetch.
type RegistryCache interface {
	Cached() *entities.Registry
}

// HealthHandler handles the root healthcheck
type HealthHandler struct {
	registry RegistryCache
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry RegistryCache) *HealthHandler {
	return &HealthHandler{
		registry: registry,
	}
}

// Healthcheck handles GET /
func (h *HealthHandler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	loaded := false
	if h.registry != nil {
		loaded = h.registry.Cached().Loaded()
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"name":           "robotto-backend",
		"registryLoaded": loaded,
	})
}
