package entity

// ExtractionSchema is the per-document-type prompt configuration.
// It is an immutable value object: the pipeline only reads it.
type ExtractionSchema struct {
	SystemInstruction     string   `json:"system_instruction"`
	ExtractionInstruction string   `json:"extraction_instruction"`
	RequiredFields        []string `json:"required_fields"`
}
