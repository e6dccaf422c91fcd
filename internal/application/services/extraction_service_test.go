package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotto-health/triage-backend/internal/domain/entities"
	"github.com/robotto-health/triage-backend/internal/domain/providers"
)

type stubRegistry struct {
	reg *entities.Registry
}

func (s *stubRegistry) Get(ctx context.Context, force bool) *entities.Registry {
	return s.reg
}

type stubExtractor struct {
	result *entities.ExtractionResult
	err    error
	calls  int
}

func (s *stubExtractor) Extract(ctx context.Context, text string, universe map[string]struct{}) (*entities.ExtractionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("key not found")
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.data[key]
	return ok, nil
}

func remoteResult() *entities.ExtractionResult {
	r := entities.NewExtractionResult()
	r.Features = []string{"febre"}
	r.Modifiers = map[string]any{"a": float64(1)}
	return r
}

func TestExtract_MergePrecedence_Modifiers(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.DemographicFields = map[string]bool{}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)

	// Fallback produces temperatura_c; remote's "a" survives alongside it.
	out := svc.Extract(context.Background(), "paciente com 38.5 graus C e febre alta", nil)

	assert.Equal(t, float64(1), out.Modifiers["a"])
	assert.Equal(t, 38.5, out.Modifiers["temperatura_c"])
}

func TestExtract_RemoteModifierWinsOnConflict(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.Modifiers = map[string]any{"temperatura_c": float64(40)}
	remote.DemographicFields = map[string]bool{}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)
	out := svc.Extract(context.Background(), "febre de 38.5 graus C", nil)

	assert.Equal(t, float64(40), out.Modifiers["temperatura_c"])
}

func TestExtract_RemoteFirstOrderStable(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.Features = []string{"tosse_seca"}
	remote.DemographicFields = map[string]bool{}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)
	out := svc.Extract(context.Background(), "paciente com febre alta", nil)

	require.GreaterOrEqual(t, len(out.Features), 2)
	assert.Equal(t, "tosse_seca", out.Features[0])
	assert.Contains(t, out.Features, "febre")
}

func TestExtract_FiltersRemoteFeaturesToAllowed(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.Features = []string{"nao_existe", "febre"}
	remote.DemographicFields = map[string]bool{}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)
	out := svc.Extract(context.Background(), "sem achados", nil)

	assert.NotContains(t, out.Features, "nao_existe")
	assert.Contains(t, out.Features, "febre")
}

func TestExtract_ClientUniverseTakesPriority(t *testing.T) {
	reg := testRegistry()
	svc := NewExtractionService(&stubRegistry{reg: reg}, nil, nil, nil)

	out := svc.Extract(context.Background(), "febre alta e dor de ouvido", []string{"otalgia"})

	assert.Equal(t, []string{"otalgia"}, out.Features)
}

func TestExtract_RemoteUnavailable_FallbackOnly(t *testing.T) {
	reg := testRegistry()
	extractor := &stubExtractor{err: providers.ErrExtractorUnavailable}
	svc := NewExtractionService(&stubRegistry{reg: reg}, extractor, nil, nil)

	out := svc.Extract(context.Background(), "paciente com febre alta", nil)

	assert.Contains(t, out.Features, "febre")
	assert.Equal(t, 1, extractor.calls)
}

func TestExtract_AllDegraded_WellFormedEmptyResult(t *testing.T) {
	reg := entities.EmptyRegistry()
	extractor := &stubExtractor{err: providers.ErrExtractorUnavailable}
	svc := NewExtractionService(&stubRegistry{reg: reg}, extractor, nil, nil)

	out := svc.Extract(context.Background(), "qualquer texto", nil)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"features": [],
		"modifiers": {},
		"demographics": {"idade": null, "sexo": null, "comorbidades": []}
	}`, string(data))
	// Empty universe means the remote extractor is never consulted.
	assert.Zero(t, extractor.calls)
}

func TestExtract_RemoteDemographicsWin_IncludingExplicitNull(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.Features = nil
	// Remote explicitly reports idade as null and sexo as F.
	f := "F"
	remote.Demographics.Sexo = &f
	remote.DemographicFields = map[string]bool{
		entities.DemographicIdade: true,
		entities.DemographicSexo:  true,
	}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)
	out := svc.Extract(context.Background(), "paciente M, 45 anos, febre alta", nil)

	// Fallback found M/45; the remote's explicit null idade and F overwrite.
	assert.Nil(t, out.Demographics.Idade)
	require.NotNil(t, out.Demographics.Sexo)
	assert.Equal(t, "F", *out.Demographics.Sexo)
}

func TestExtract_RemoteOmittedDemographicsKeepFallback(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	remote.Features = nil
	remote.DemographicFields = map[string]bool{}

	svc := NewExtractionService(&stubRegistry{reg: reg}, &stubExtractor{result: remote}, nil, nil)
	out := svc.Extract(context.Background(), "paciente M, 45 anos", nil)

	require.NotNil(t, out.Demographics.Idade)
	assert.Equal(t, 45, *out.Demographics.Idade)
	require.NotNil(t, out.Demographics.Sexo)
	assert.Equal(t, "M", *out.Demographics.Sexo)
}

func TestExtract_RemoteResultCached(t *testing.T) {
	reg := testRegistry()
	extractor := &stubExtractor{result: remoteResult()}
	cache := newMemoryCache()
	svc := NewExtractionService(&stubRegistry{reg: reg}, extractor, cache, nil)

	svc.Extract(context.Background(), "paciente com febre", nil)
	svc.Extract(context.Background(), "paciente com febre", nil)

	assert.Equal(t, 1, extractor.calls)
	assert.Len(t, cache.data, 1)
}

func TestExtract_CachedRemoteWithoutDemographicsKeepsFallback(t *testing.T) {
	reg := testRegistry()
	remote := remoteResult()
	// An empty presence map means the remote extractor set no demographic
	// field; it must stay empty across the cache round trip.
	remote.DemographicFields = map[string]bool{}
	extractor := &stubExtractor{result: remote}
	cache := newMemoryCache()
	svc := NewExtractionService(&stubRegistry{reg: reg}, extractor, cache, nil)

	text := "paciente masculino, 45 anos, com febre"

	first := svc.Extract(context.Background(), text, nil)
	require.NotNil(t, first.Demographics.Idade)
	assert.Equal(t, 45, *first.Demographics.Idade)

	second := svc.Extract(context.Background(), text, nil)
	assert.Equal(t, 1, extractor.calls)
	require.NotNil(t, second.Demographics.Idade, "cached remote without demographics must not overwrite fallback idade")
	assert.Equal(t, 45, *second.Demographics.Idade)
	require.NotNil(t, second.Demographics.Sexo)
	assert.Equal(t, "M", *second.Demographics.Sexo)
}

func TestExtract_CacheKeyVariesWithUniverse(t *testing.T) {
	a := remoteCacheKey("texto", map[string]struct{}{"febre": {}})
	b := remoteCacheKey("texto", map[string]struct{}{"otalgia": {}})
	c := remoteCacheKey("outro texto", map[string]struct{}{"febre": {}})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
