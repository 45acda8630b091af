package llm

import (
	"context"
	"strings"

	"github.com/docuscan/docuscan/internal/entity"
)

// Completer is the capability the pipeline consumes: given a system
// instruction and a user prompt, return the model's text output.
// Providers are expected to run at temperature 0 for reproducibility.
type Completer interface {
	Complete(ctx context.Context, systemInstruction, userPrompt string) (string, error)
}

// BuildUserPrompt concatenates the schema's extraction instruction, a
// literal separator, and the extracted document text.
func BuildUserPrompt(schema entity.ExtractionSchema, documentText string) string {
	var b strings.Builder
	b.WriteString(schema.ExtractionInstruction)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(documentText)
	return b.String()
}
