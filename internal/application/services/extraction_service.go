package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/internal/domain/providers"
	"github.com/robotto-health/triage-backend/internal/infrastructure/observability"
)

// remoteCacheTTLSeconds bounds how long a remote extraction is reused for the
// same narrative and universe.
const remoteCacheTTLSeconds = 3600

// RegistryProvider supplies the current registry snapshot.
type RegistryProvider interface {
	Get(ctx context.Context, force bool) *entities.Registry
}

// ExtractionService runs the full triage extraction pipeline: registry
// lookup, remote extraction, local fallback, then merge and filter.
type ExtractionService struct {
	registry  RegistryProvider
	extractor providers.Extractor
	cache     providers.CacheProvider
	metrics   *observability.Metrics
}

// NewExtractionService creates the service. extractor and cache may be nil;
// the pipeline then runs on the local fallback alone.
func NewExtractionService(
	registry RegistryProvider,
	extractor providers.Extractor,
	cache providers.CacheProvider,
	metrics *observability.Metrics,
) *ExtractionService {
	return &ExtractionService{
		registry:  registry,
		extractor: extractor,
		cache:     cache,
		metrics:   metrics,
	}
}

// Extract processes one narrative. clientFeatures, when non-empty, defines
// the allowed universe directly and takes priority over the registry's full
// set. Always returns a well-formed result; degraded collaborators never
// surface as errors.
func (s *ExtractionService) Extract(ctx context.Context, text string, clientFeatures []string) *entities.ExtractionResult {
	reg := s.registry.Get(ctx, false)
	allowed := allowedFeatures(clientFeatures, reg)

	var remote *entities.ExtractionResult
	if s.extractor != nil && text != "" && len(allowed) > 0 {
		remote = s.remoteExtract(ctx, text, allowed)
	}

	fallback := FallbackExtract(text, reg, allowed)
	if s.metrics != nil && len(fallback.Features) > 0 {
		s.metrics.FallbackHits.Add(ctx, 1)
	}

	merged := mergeResults(remote, fallback, allowed)
	if s.metrics != nil {
		s.metrics.MergedFeaturesTotal.Add(ctx, int64(len(merged.Features)))
	}
	return merged
}

// remoteExtract calls the remote extractor, memoizing results in the shared
// cache. Unavailability yields nil, treated downstream as an empty result.
func (s *ExtractionService) remoteExtract(ctx context.Context, text string, allowed map[string]struct{}) *entities.ExtractionResult {
	key := remoteCacheKey(text, allowed)
	if cached := s.cachedRemote(ctx, key); cached != nil {
		return cached
	}

	if s.metrics != nil {
		s.metrics.LLMCalls.Add(ctx, 1)
	}
	result, err := s.extractor.Extract(ctx, text, allowed)
	if err != nil {
		if !errors.Is(err, providers.ErrExtractorUnavailable) {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("remote extractor failed")
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.LLMSuccess.Add(ctx, 1)
	}

	s.storeRemote(ctx, key, result)
	return result
}

// cachedRemoteResult is the cache envelope; demographic presence must survive
// the round trip because the merge step depends on it. The presence map is
// never omitted: an empty map ("remote set nothing") and a nil map ("treat
// all fields as set") are distinct values.
type cachedRemoteResult struct {
	Result            *entities.ExtractionResult `json:"result"`
	DemographicFields map[string]bool            `json:"demographic_fields"`
}

func (s *ExtractionService) cachedRemote(ctx context.Context, key string) *entities.ExtractionResult {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var envelope cachedRemoteResult
	if json.Unmarshal(data, &envelope) != nil || envelope.Result == nil {
		return nil
	}
	envelope.Result.DemographicFields = envelope.DemographicFields
	return envelope.Result
}

func (s *ExtractionService) storeRemote(ctx context.Context, key string, result *entities.ExtractionResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedRemoteResult{
		Result:            result,
		DemographicFields: result.DemographicFields,
	})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, remoteCacheTTLSeconds); err != nil {
		observability.LoggerFromContext(ctx).Debug().Err(err).Msg("failed to cache remote extraction")
	}
}

func remoteCacheKey(text string, allowed map[string]struct{}) string {
	ids := make([]string, 0, len(allowed))
	for id := range allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))
	return "llm_extract:" + hex.EncodeToString(h.Sum(nil))
}

// allowedFeatures computes the request's feature universe: the client list
// when non-empty, otherwise the registry's full set.
func allowedFeatures(clientFeatures []string, reg *entities.Registry) map[string]struct{} {
	if len(clientFeatures) > 0 {
		set := make(map[string]struct{}, len(clientFeatures))
		for _, f := range clientFeatures {
			if f != "" {
				set[f] = struct{}{}
			}
		}
		if len(set) > 0 {
			return set
		}
	}
	return reg.FeaturesSet
}

// mergeResults unions the extractor outputs under the defined precedence:
// features remote-first order-stable and filtered to allowed; modifiers and
// demographics shallow-merged with remote winning, an explicit remote null
// included.
func mergeResults(remote, fallback *entities.ExtractionResult, allowed map[string]struct{}) *entities.ExtractionResult {
	merged := entities.NewExtractionResult()

	seen := make(map[string]struct{})
	appendAllowed := func(features []string) {
		for _, f := range features {
			if _, ok := allowed[f]; !ok {
				continue
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			merged.Features = append(merged.Features, f)
		}
	}
	if remote != nil {
		appendAllowed(remote.Features)
	}
	appendAllowed(fallback.Features)

	for k, v := range fallback.Modifiers {
		merged.Modifiers[k] = v
	}
	if remote != nil {
		for k, v := range remote.Modifiers {
			merged.Modifiers[k] = v
		}
	}

	merged.Demographics = fallback.Demographics
	if remote != nil {
		if remote.HasDemographic(entities.DemographicIdade) {
			merged.Demographics.Idade = remote.Demographics.Idade
		}
		if remote.HasDemographic(entities.DemographicSexo) {
			merged.Demographics.Sexo = remote.Demographics.Sexo
		}
		if remote.HasDemographic(entities.DemographicComorbidades) {
			merged.Demographics.Comorbidades = remote.Demographics.Comorbidades
		}
	}
	if merged.Demographics.Comorbidades == nil {
		merged.Demographics.Comorbidades = []string{}
	}

	return merged
}
