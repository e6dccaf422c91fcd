package providers

import (
	"context"
	"encoding/json"
)

// RegistrySource fetches one raw registry document (snapshot, standalone
// features, or standalone redflags). A failed fetch returns an error; the
// caller degrades that source to empty rather than aborting the rebuild.
type RegistrySource interface {
	// Name identifies the source in logs.
	Name() string

	// Fetch returns the raw JSON document.
	Fetch(ctx context.Context) (json.RawMessage, error)
}
