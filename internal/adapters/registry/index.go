package registry

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/pkg/textutil"
)

var parenGroup = regexp.MustCompile(`\(([^)]*)\)`)

// labelSplitters are the characters a label is additionally split on when
// exploding it into candidate aliases.
const labelSplitters = "/-–—:;,|•"

// BuildRegistry indexes a coerced feature map into a full snapshot.
// Features are indexed in sorted-ID order so alias collisions resolve the
// same way on every rebuild; within a feature, derivation order is declared
// aliases, label, exploded label, ID variants.
func BuildRegistry(features map[string]entities.FeatureMeta, redflags map[string]any, raw json.RawMessage) *entities.Registry {
	reg := entities.EmptyRegistry()
	reg.Raw = raw
	if redflags != nil {
		reg.Redflags = redflags
	}

	ids := make([]string, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		meta := features[id]
		reg.FeaturesSet[id] = struct{}{}
		reg.IDToMeta[id] = meta
		for _, alias := range deriveAliases(id, meta) {
			reg.Aliases.Put(textutil.NormalizeStr(alias), id)
		}
	}
	return reg
}

// deriveAliases collects every raw alias candidate for one feature. The
// caller normalizes; duplicates and empties are resolved by the index.
func deriveAliases(id string, meta entities.FeatureMeta) []string {
	var out []string
	out = append(out, meta.Aliases...)
	if meta.Label != "" {
		out = append(out, meta.Label)
		out = append(out, explodeLabel(meta.Label)...)
	}
	out = append(out,
		id,
		strings.ReplaceAll(id, "_", " "),
		strings.ReplaceAll(id, ".", " "),
	)
	return out
}

// explodeLabel derives extra aliases from a label: each parenthesized group
// on its own, the label with parenthesized groups removed, and each segment
// of the label split on the splitter characters.
func explodeLabel(label string) []string {
	var out []string

	for _, match := range parenGroup.FindAllStringSubmatch(label, -1) {
		if inner := strings.TrimSpace(match[1]); inner != "" {
			out = append(out, inner)
		}
	}

	stripped := parenGroup.ReplaceAllString(label, " ")
	stripped = strings.Join(strings.Fields(stripped), " ")
	if stripped != "" {
		out = append(out, stripped)
	}

	segments := strings.FieldsFunc(label, func(r rune) bool {
		return strings.ContainsRune(labelSplitters, r)
	})
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
