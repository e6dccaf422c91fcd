package entities

// Demographic field names used in DemographicFields presence tracking.
const (
	DemographicIdade        = "idade"
	DemographicSexo         = "sexo"
	DemographicComorbidades = "comorbidades"
)

// Demographics holds patient demographic fields. Idade and Sexo are pointers
// because "unknown" (null) is a meaningful value in the response contract.
type Demographics struct {
	Idade        *int     `json:"idade"`
	Sexo         *string  `json:"sexo"`
	Comorbidades []string `json:"comorbidades"`
}

// ExtractionResult is the structured output of one extractor run: canonical
// feature IDs found in the narrative, free-form modifier values, and
// demographics.
type ExtractionResult struct {
	Features     []string       `json:"features"`
	Modifiers    map[string]any `json:"modifiers"`
	Demographics Demographics   `json:"demographics"`

	// DemographicFields records which demographic keys this producer
	// explicitly set, including keys explicitly set to null. Merging uses it
	// for shallow field-by-field overwrite. A nil map means all fields are
	// considered set.
	DemographicFields map[string]bool `json:"-"`
}

// NewExtractionResult returns a result with every collection initialized, so
// the JSON encoding is always `{"features":[],"modifiers":{},...}` rather
// than nulls.
func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{
		Features:  []string{},
		Modifiers: map[string]any{},
		Demographics: Demographics{
			Comorbidades: []string{},
		},
	}
}

// HasDemographic reports whether the producer explicitly set the named field.
func (r *ExtractionResult) HasDemographic(field string) bool {
	if r.DemographicFields == nil {
		return true
	}
	return r.DemographicFields[field]
}
