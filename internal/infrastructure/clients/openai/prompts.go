package openai

import (
	"fmt"
	"strings"
)

const extractSystemPrompt = "Você é um assistente clínico de triagem em Otorrinolaringologia. " +
	"Extraia APENAS os identificadores canônicos de FEATURES presentes no texto. " +
	"Somente IDs contidos no 'featuresUniverse' são válidos. " +
	"Responda via função 'extract' no formato JSON. " +
	"Não faça diagnóstico; apenas extração semântica de sinais/sintomas/modificadores/demografia."

func buildExtractUserPrompt(text string, universe []string) string {
	return fmt.Sprintf(
		"Texto do paciente (pt-BR):\n%s\n\nfeaturesUniverse: %s",
		text,
		strings.Join(universe, ", "),
	)
}

// extractToolParameters is the fixed JSON schema of the 'extract' function
// call. Responses that do not validate against it degrade to unavailable.
func extractToolParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"features": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"modifiers": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
			"demographics": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"idade": map[string]any{"type": []string{"integer", "null"}},
					"sexo": map[string]any{
						"type": []string{"string", "null"},
						"enum": []any{"M", "F", nil},
					},
					"comorbidades": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"additionalProperties": true,
			},
		},
		"required": []string{"features"},
	}
}
