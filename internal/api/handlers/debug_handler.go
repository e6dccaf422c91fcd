package handlers

import (
	"context"
	"net/http"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

const debugSampleLimit = 50

// RegistryProvider supplies the current registry snapshot, fetching it
// when stale.
type RegistryProvider interface {
	Get(ctx context.Context, force bool) *entities.Registry
}

// DebugHandler exposes registry internals for operational inspection
type DebugHandler struct {
	registry RegistryProvider
}

// NewDebugHandler creates a new debug handler
func NewDebugHandler(registry RegistryProvider) *DebugHandler {
	return &DebugHandler{
		registry: registry,
	}
}

type aliasSample struct {
	Alias string `json:"alias"`
	FID   string `json:"fid"`
}

// Registry handles GET /api/triage/debug
func (h *DebugHandler) Registry(w http.ResponseWriter, r *http.Request) {
	reg := h.registry.Get(r.Context(), false)

	sample := make([]aliasSample, 0, debugSampleLimit)
	reg.Aliases.Each(func(alias, featureID string) bool {
		sample = append(sample, aliasSample{Alias: alias, FID: featureID})
		return len(sample) < debugSampleLimit
	})

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"features_count": len(reg.FeaturesSet),
		"aliases_count":  reg.Aliases.Len(),
		"sample_aliases": sample,
	})
}
