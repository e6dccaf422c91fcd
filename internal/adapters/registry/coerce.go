// Package registry turns raw registry documents, arriving in several
// inconsistent external shapes, into the canonical snapshot the extractors
// consume.
package registry

import (
	"regexp"
	"strings"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

// featureKeyPattern matches strings that look like canonical feature IDs.
// A plain object is only accepted as a feature map when every key matches.
var featureKeyPattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

// aliasDelimiters splits delimiter-separated alias strings.
var aliasDelimiters = regexp.MustCompile(`[;,|]`)

// sourceShape tags the recognized layouts of a raw features value.
type sourceShape int

const (
	shapeUnknown sourceShape = iota
	shapeFeatureMap
	shapeRecordArray
	shapeWrappedRecords
)

// detectShape classifies a decoded JSON value. Wrapper detection runs before
// the plain-map check because "features" itself matches the feature-ID
// pattern.
func detectShape(v any) sourceShape {
	switch val := v.(type) {
	case []any:
		return shapeRecordArray
	case map[string]any:
		if inner, ok := val["features"]; ok {
			if _, isArray := inner.([]any); isArray {
				return shapeWrappedRecords
			}
		}
		if len(val) == 0 {
			return shapeUnknown
		}
		for key := range val {
			if !featureKeyPattern.MatchString(key) {
				return shapeUnknown
			}
		}
		return shapeFeatureMap
	}
	return shapeUnknown
}

// CoerceFeatureMap normalizes any recognized features value into an
// id → meta map. Unrecognized shapes coerce to an empty map, never an error.
func CoerceFeatureMap(v any) map[string]entities.FeatureMeta {
	switch detectShape(v) {
	case shapeWrappedRecords:
		return CoerceFeatureMap(v.(map[string]any)["features"])
	case shapeRecordArray:
		return coerceRecordArray(v.([]any))
	case shapeFeatureMap:
		return coercePlainMap(v.(map[string]any))
	}
	return map[string]entities.FeatureMeta{}
}

// coerceRecordArray builds a map from [{id, label, aliases}, ...] records.
// Records without a usable id are skipped.
func coerceRecordArray(records []any) map[string]entities.FeatureMeta {
	out := make(map[string]entities.FeatureMeta, len(records))
	for _, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		id, _ := obj["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = metaFromValue(obj)
	}
	return out
}

func coercePlainMap(m map[string]any) map[string]entities.FeatureMeta {
	out := make(map[string]entities.FeatureMeta, len(m))
	for id, v := range m {
		out[id] = metaFromValue(v)
	}
	return out
}

// metaFromValue extracts label and aliases from one feature entry. The entry
// may be a full object, something degenerate (null, a bare string used as a
// label), or missing fields entirely.
func metaFromValue(v any) entities.FeatureMeta {
	switch val := v.(type) {
	case map[string]any:
		meta := entities.FeatureMeta{}
		if label, ok := val["label"].(string); ok {
			meta.Label = label
		}
		meta.Aliases = coerceAliases(val["aliases"])
		return meta
	case string:
		return entities.FeatureMeta{Label: val}
	}
	return entities.FeatureMeta{}
}

// coerceAliases accepts aliases declared as an array or as one
// delimiter-separated string. Duplicates are dropped, order preserved.
func coerceAliases(v any) []string {
	var raw []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = splitAliasString(val)
	}

	var out []string
	seen := make(map[string]struct{}, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// splitAliasString splits on ';', ',' or '|'. A string without any of those
// delimiters is the single alias itself.
func splitAliasString(s string) []string {
	if !aliasDelimiters.MatchString(s) {
		return []string{s}
	}
	return aliasDelimiters.Split(s, -1)
}

// featurePaths are the snapshot fields probed for feature data, in priority
// order.
var featurePaths = []string{"featuresMap", "features", "byFeatureId"}

// nestedWrappers are the sub-objects under which the same paths are retried.
var nestedWrappers = []string{"registry", "global"}

// FeaturesFromSnapshot probes the known nesting paths of a snapshot document
// and returns the first non-empty coerced feature map.
func FeaturesFromSnapshot(doc map[string]any) map[string]entities.FeatureMeta {
	if doc == nil {
		return map[string]entities.FeatureMeta{}
	}
	for _, path := range featurePaths {
		if v, ok := doc[path]; ok {
			if features := CoerceFeatureMap(v); len(features) > 0 {
				return features
			}
		}
	}
	for _, wrapper := range nestedWrappers {
		sub, ok := doc[wrapper].(map[string]any)
		if !ok {
			continue
		}
		for _, path := range featurePaths {
			if v, ok := sub[path]; ok {
				if features := CoerceFeatureMap(v); len(features) > 0 {
					return features
				}
			}
		}
	}
	return map[string]entities.FeatureMeta{}
}

// RedflagsFromSnapshot probes the same nesting scheme for redflag data.
func RedflagsFromSnapshot(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	if v, ok := doc["redflags"]; ok {
		if flags := CoerceRedflags(v); len(flags) > 0 {
			return flags
		}
	}
	for _, wrapper := range nestedWrappers {
		if sub, ok := doc[wrapper].(map[string]any); ok {
			if v, ok := sub["redflags"]; ok {
				if flags := CoerceRedflags(v); len(flags) > 0 {
					return flags
				}
			}
		}
	}
	return map[string]any{}
}

// CoerceRedflags normalizes array-shaped redflag data ([id, id, ...]) into
// {id: true}; object-shaped data passes through unchanged.
func CoerceRedflags(v any) map[string]any {
	switch val := v.(type) {
	case []any:
		out := make(map[string]any, len(val))
		for _, item := range val {
			if id, ok := item.(string); ok && id != "" {
				out[id] = true
			}
		}
		return out
	case map[string]any:
		return val
	}
	return map[string]any{}
}
