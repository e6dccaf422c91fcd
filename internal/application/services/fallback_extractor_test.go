package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registryadapter "github.com/robotto-health/triage-backend/internal/adapters/registry"
	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

func testRegistry() *entities.Registry {
	return registryadapter.BuildRegistry(map[string]entities.FeatureMeta{
		"rinite_alergica": {Label: "Rinite Alérgica"},
		"febre":           {Label: "Febre", Aliases: []string{"febre alta", "temperatura elevada"}},
		"otalgia":         {Label: "Otalgia", Aliases: []string{"dor de ouvido"}},
		"tosse_seca":      {Label: "Tosse Seca"},
	}, nil, nil)
}

func allOf(reg *entities.Registry) map[string]struct{} {
	return reg.FeaturesSet
}

func TestFallbackExtract_FullScenario(t *testing.T) {
	reg := testRegistry()
	text := "paciente M, 45 anos, com rinite alergica e 38.5 graus C"

	result := FallbackExtract(text, reg, allOf(reg))

	assert.Contains(t, result.Features, "rinite_alergica")
	require.NotNil(t, result.Demographics.Idade)
	assert.Equal(t, 45, *result.Demographics.Idade)
	require.NotNil(t, result.Demographics.Sexo)
	assert.Equal(t, "M", *result.Demographics.Sexo)
	assert.Equal(t, 38.5, result.Modifiers["temperatura_c"])
}

func TestFallbackExtract_SubsetOfAllowed(t *testing.T) {
	reg := testRegistry()
	allowed := map[string]struct{}{"febre": {}}

	result := FallbackExtract("rinite alergica com febre alta e dor de ouvido", reg, allowed)

	assert.Equal(t, []string{"febre"}, result.Features)
}

func TestFallbackExtract_SubstringMatch(t *testing.T) {
	reg := testRegistry()
	result := FallbackExtract("queixa de DOR DE OUVIDO há dois dias", reg, allOf(reg))
	assert.Contains(t, result.Features, "otalgia")
}

func TestFallbackExtract_BagOfWords(t *testing.T) {
	reg := testRegistry()
	// Alias words out of order and separated, so the substring pass misses.
	result := FallbackExtract("temperatura do paciente muito elevada", reg, allOf(reg))
	assert.Contains(t, result.Features, "febre")
}

func TestFallbackExtract_IDTokenHeuristic(t *testing.T) {
	// Feature has no label or aliases; only the ID vocabulary can match.
	reg := registryadapter.BuildRegistry(map[string]entities.FeatureMeta{
		"zumbido_pulsatil": {},
	}, nil, nil)

	result := FallbackExtract("relata zumbido do tipo pulsátil à esquerda", reg, allOf(reg))
	assert.Contains(t, result.Features, "zumbido_pulsatil")
}

func TestFallbackExtract_NoMatches(t *testing.T) {
	reg := testRegistry()
	result := FallbackExtract("retorno para mostrar exames", reg, allOf(reg))

	assert.Empty(t, result.Features)
	assert.NotNil(t, result.Features)
	assert.Nil(t, result.Demographics.Idade)
	assert.Nil(t, result.Demographics.Sexo)
	assert.Empty(t, result.Modifiers)
}

func TestFallbackExtract_SexFemaleOverwritesMale(t *testing.T) {
	reg := testRegistry()
	// Both patterns match; the female pattern runs second and wins.
	result := FallbackExtract("homem acompanha paciente mulher", reg, allOf(reg))

	require.NotNil(t, result.Demographics.Sexo)
	assert.Equal(t, "F", *result.Demographics.Sexo)
}

func TestFallbackExtract_SexSingleLetterMarkers(t *testing.T) {
	reg := testRegistry()

	result := FallbackExtract("sexo: F, 30 anos", reg, allOf(reg))
	require.NotNil(t, result.Demographics.Sexo)
	assert.Equal(t, "F", *result.Demographics.Sexo)
}

func TestFallbackExtract_AgeOutOfRangeDiscarded(t *testing.T) {
	reg := testRegistry()
	result := FallbackExtract("paciente com 150 anos", reg, allOf(reg))
	assert.Nil(t, result.Demographics.Idade)
}

func TestFallbackExtract_AgeShortUnit(t *testing.T) {
	reg := testRegistry()
	result := FallbackExtract("paciente 7 a, sexo M", reg, allOf(reg))
	require.NotNil(t, result.Demographics.Idade)
	assert.Equal(t, 7, *result.Demographics.Idade)
}

func TestFallbackExtract_TemperatureVariants(t *testing.T) {
	reg := testRegistry()
	for text, want := range map[string]float64{
		"chegou com 38.5°C":    38.5,
		"febre de 39 graus C":  39,
		"aferida 37.8 graus c": 37.8,
	} {
		result := FallbackExtract(text, reg, allOf(reg))
		assert.Equal(t, want, result.Modifiers["temperatura_c"], "text: %s", text)
	}
}

func TestFallbackExtract_StopWordsIgnoredInBagOfWords(t *testing.T) {
	// "dor de ouvido": "de" is a stop word, so only "dor" and "ouvido" must
	// appear as tokens.
	reg := testRegistry()
	result := FallbackExtract("ouvido direito com dor forte", reg, allOf(reg))
	assert.Contains(t, result.Features, "otalgia")
}

func TestFallbackExtract_EmptyTextAndEmptyRegistry(t *testing.T) {
	reg := entities.EmptyRegistry()
	result := FallbackExtract("", reg, map[string]struct{}{})

	assert.Empty(t, result.Features)
	assert.Equal(t, []string{}, result.Demographics.Comorbidades)
}

func TestFallbackExtract_DeterministicOrder(t *testing.T) {
	reg := testRegistry()
	text := "febre alta, tosse seca e dor de ouvido em paciente com rinite alergica"

	first := FallbackExtract(text, reg, allOf(reg))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Features, FallbackExtract(text, reg, allOf(reg)).Features)
	}
}
