package providers

import (
	"context"
	"errors"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

// ErrExtractorUnavailable signals that the remote extractor could not produce
// a result for this attempt: misconfiguration, network failure, non-success
// response, or a response that failed schema validation. Callers treat it the
// same as an empty extraction, never as a fatal error.
var ErrExtractorUnavailable = errors.New("remote extractor unavailable")

// Extractor runs semantic extraction over patient narrative. Implementations
// must only return feature IDs contained in universe.
type Extractor interface {
	Extract(ctx context.Context, text string, universe map[string]struct{}) (*entities.ExtractionResult, error)
}
