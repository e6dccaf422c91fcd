package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/pkg/textutil"
)

// stopWords are Portuguese function words ignored by the bag-of-words pass.
var stopWords = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "e": {}, "a": {},
	"o": {}, "as": {}, "os": {}, "para": {}, "no": {}, "na": {}, "nos": {},
	"nas": {}, "com": {}, "em": {}, "por": {}, "um": {}, "uma": {},
}

var (
	sexoMaleRe   = regexp.MustCompile(`\b(?:sexo\s+)?(?:masculino|homem|m)\b`)
	sexoFemaleRe = regexp.MustCompile(`\b(?:sexo\s+)?(?:feminino|mulher|f)\b`)
	idadeRe      = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:anos?|a)\b`)
	// Matches "38.5°C", "38 graus C", "39cº" and spacing variants.
	temperaturaRe = regexp.MustCompile(`(?i)(\d{2}(?:\.\d)?)\s*(?:°\s*c|graus?\s*c|c\s*º)`)
)

// FallbackExtract is the deterministic local extractor: regex-based
// demographics plus a three-pass alias matcher. Pure over its inputs and
// never fails; features in the result are always a subset of allowed.
func FallbackExtract(text string, reg *entities.Registry, allowed map[string]struct{}) *entities.ExtractionResult {
	result := entities.NewExtractionResult()

	norm := textutil.NormalizeStr(text)
	tokens := textutil.Tokens(norm)

	extractDemographics(text, norm, result)
	extractModifiers(text, result)

	matched := make(map[string]struct{})
	add := func(fid string) {
		if _, dup := matched[fid]; dup {
			return
		}
		matched[fid] = struct{}{}
		result.Features = append(result.Features, fid)
	}

	// Pass 1: normalized alias appears as a substring of the narrative.
	reg.Aliases.Each(func(alias, fid string) bool {
		if _, ok := allowed[fid]; !ok {
			return true
		}
		if strings.Contains(norm, alias) {
			add(fid)
		}
		return true
	})

	// Pass 2: bag-of-words. Every relevant alias word present somewhere in
	// the text, regardless of order or adjacency.
	reg.Aliases.Each(func(alias, fid string) bool {
		if _, ok := allowed[fid]; !ok {
			return true
		}
		if _, done := matched[fid]; done {
			return true
		}
		if words := relevantWords(alias); len(words) > 0 && allPresent(words, tokens) {
			add(fid)
		}
		return true
	})

	// Pass 3: ID-token heuristic. Catches features whose ID shares
	// vocabulary with the text even without a registered alias.
	for _, fid := range sortedIDs(allowed) {
		idTokens := strings.FieldsFunc(fid, func(r rune) bool {
			return r == '_' || r == '.'
		})
		if len(idTokens) == 0 {
			continue
		}
		ok := true
		for _, tok := range idTokens {
			if _, present := tokens[textutil.StripDiacritics(tok)]; !present {
				ok = false
				break
			}
		}
		if ok {
			add(fid)
		}
	}

	return result
}

// extractDemographics fills sexo and idade. The female pattern runs after the
// male one and overwrites it when both match; last match wins is the defined
// precedence here.
func extractDemographics(raw, norm string, result *entities.ExtractionResult) {
	if sexoMaleRe.MatchString(norm) {
		m := "M"
		result.Demographics.Sexo = &m
	}
	if sexoFemaleRe.MatchString(norm) {
		f := "F"
		result.Demographics.Sexo = &f
	}

	// Age runs over the raw text, first match only; out-of-range values are
	// discarded rather than retried.
	if m := idadeRe.FindStringSubmatch(raw); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil && age >= 0 && age <= 120 {
			result.Demographics.Idade = &age
		}
	}
}

func extractModifiers(raw string, result *entities.ExtractionResult) {
	if m := temperaturaRe.FindStringSubmatch(raw); m != nil {
		if temp, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Modifiers["temperatura_c"] = temp
		}
	}
}

// relevantWords drops stop words and single characters from an alias.
func relevantWords(alias string) []string {
	var out []string
	for _, w := range strings.Fields(alias) {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func allPresent(words []string, tokens map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := tokens[w]; !ok {
			return false
		}
	}
	return true
}

// sortedIDs fixes the iteration order of the ID-token pass so output order is
// stable across runs.
func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
