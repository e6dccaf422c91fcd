package entities

import "encoding/json"

// FeatureMeta holds the display label and declared synonyms for one feature.
// Both fields may be absent in the source document.
type FeatureMeta struct {
	Label   string   `json:"label,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// Registry is an immutable snapshot of the external clinical vocabulary.
// It is rebuilt wholesale on refresh, never mutated in place.
type Registry struct {
	// FeaturesSet contains every feature ID known to this snapshot.
	FeaturesSet map[string]struct{}

	// IDToMeta maps each feature ID to its label and declared aliases.
	IDToMeta map[string]FeatureMeta

	// Aliases resolves normalized alias strings back to feature IDs.
	Aliases *AliasIndex

	// Redflags is carried through opaquely for downstream consumers.
	// Array-shaped source data is normalized to {id: true}.
	Redflags map[string]any

	// Raw is the snapshot document as fetched, for passthrough fields the
	// extraction core does not interpret (global-id maps, lexicons).
	Raw json.RawMessage
}

// EmptyRegistry returns the canonical zero-value snapshot used when no source
// is configured or every source is unavailable.
func EmptyRegistry() *Registry {
	return &Registry{
		FeaturesSet: map[string]struct{}{},
		IDToMeta:    map[string]FeatureMeta{},
		Aliases:     NewAliasIndex(),
		Redflags:    map[string]any{},
	}
}

// Loaded reports whether the snapshot carries at least one feature.
func (r *Registry) Loaded() bool {
	return r != nil && len(r.FeaturesSet) > 0
}

// AliasIndex is a normalized-alias → feature-ID map that remembers insertion
// order, so iteration over the index is deterministic. Collisions are
// expected: a later Put for the same alias overwrites the earlier feature ID
// without moving the alias's position.
type AliasIndex struct {
	order []string
	ids   map[string]string
}

// NewAliasIndex returns an empty index.
func NewAliasIndex() *AliasIndex {
	return &AliasIndex{ids: make(map[string]string)}
}

// Put registers an alias for a feature. Empty aliases are ignored.
func (x *AliasIndex) Put(alias, featureID string) {
	if alias == "" {
		return
	}
	if _, exists := x.ids[alias]; !exists {
		x.order = append(x.order, alias)
	}
	x.ids[alias] = featureID
}

// Lookup returns the feature ID registered for a normalized alias.
func (x *AliasIndex) Lookup(alias string) (string, bool) {
	id, ok := x.ids[alias]
	return id, ok
}

// Len returns the number of distinct aliases in the index.
func (x *AliasIndex) Len() int {
	return len(x.order)
}

// Each calls fn for every (alias, featureID) pair in insertion order until fn
// returns false.
func (x *AliasIndex) Each(fn func(alias, featureID string) bool) {
	for _, alias := range x.order {
		if !fn(alias, x.ids[alias]) {
			return
		}
	}
}
