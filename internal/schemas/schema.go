package schemas

// configSchema returns the JSON-Schema (draft 2020-12 subset) that every
// document-type configuration file must satisfy.
func configSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"system_instruction":     map[string]any{"type": "string", "minLength": 1},
			"extraction_instruction": map[string]any{"type": "string", "minLength": 1},
			"required_fields": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "minLength": 1},
			},
		},
		"required": []string{"system_instruction", "extraction_instruction", "required_fields"},
	}
}
