package correct

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// correctableFields are the record fields the oracle may propose fixes for.
var correctableFields = []string{
	"address", "city", "state", "zip_code", "sale_price_usd", "gla_sqft",
	"sale_date", "bedrooms", "bathrooms", "lot_size", "year_built",
	"property_type",
}

// buildCorrectionSchema returns the JSON-Schema the oracle's response must
// satisfy. It doubles as the structured-output constraint sent to the model.
func buildCorrectionSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"corrections"},
		"properties": map[string]any{
			"corrections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"field", "corrected_value", "confidence", "reasoning"},
					"properties": map[string]any{
						"field":           map[string]any{"type": "string", "enum": correctableFields},
						"corrected_value": map[string]any{"type": "string"},
						"confidence":      map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
						"reasoning":       map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// validateAgainstSchema validates data against schemaMap before any of the
// oracle's output is trusted.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
