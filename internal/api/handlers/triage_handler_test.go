package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotto-health/triage-backend/internal/api/handlers"
	"github.com/robotto-health/triage-backend/internal/domain/entities"
)

type stubExtractionService struct {
	calls  int
	text   string
	client []string
	result *entities.ExtractionResult
}

func (s *stubExtractionService) Extract(ctx context.Context, text string, clientFeatures []string) *entities.ExtractionResult {
	s.calls++
	s.text = text
	s.client = clientFeatures
	if s.result != nil {
		return s.result
	}
	return entities.NewExtractionResult()
}

func TestTriageHandler_Extract_Success(t *testing.T) {
	idade := 45
	service := &stubExtractionService{result: &entities.ExtractionResult{
		Features:  []string{"rinite_alergica"},
		Modifiers: map[string]interface{}{"temperatura_c": 38.5},
		Demographics: entities.Demographics{
			Idade:        &idade,
			Comorbidades: []string{},
		},
	}}
	handler := handlers.NewTriageHandler(service)

	body := `{"text":"paciente com rinite alergica","want":"extract"}`
	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, service.calls)
	assert.Equal(t, "paciente com rinite alergica", service.text)

	var response entities.ExtractionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, []string{"rinite_alergica"}, response.Features)
	require.NotNil(t, response.Demographics.Idade)
	assert.Equal(t, 45, *response.Demographics.Idade)
}

func TestTriageHandler_Extract_WantDefaultsToExtract(t *testing.T) {
	service := &stubExtractionService{}
	handler := handlers.NewTriageHandler(service)

	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader(`{"text":"febre"}`))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, service.calls)
}

func TestTriageHandler_Extract_UnsupportedWant(t *testing.T) {
	service := &stubExtractionService{}
	handler := handlers.NewTriageHandler(service)

	body := `{"text":"febre","want":"summarize"}`
	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, service.calls, "rejection must happen before any extraction work")

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "only 'extract' supported for now", response["error"])
}

func TestTriageHandler_Extract_ClientUniverseForwarded(t *testing.T) {
	service := &stubExtractionService{}
	handler := handlers.NewTriageHandler(service)

	body := `{"text":"febre","featuresMap":["febre","otalgia"]}`
	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"febre", "otalgia"}, service.client)
}

func TestTriageHandler_Extract_EmptyBody(t *testing.T) {
	service := &stubExtractionService{}
	handler := handlers.NewTriageHandler(service)

	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader(""))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, service.calls)
	assert.Equal(t, "", service.text)
}

func TestTriageHandler_Extract_MalformedBody(t *testing.T) {
	service := &stubExtractionService{}
	handler := handlers.NewTriageHandler(service)

	req := httptest.NewRequest("POST", "/api/triage", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	handler.Extract(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, service.calls)
}
