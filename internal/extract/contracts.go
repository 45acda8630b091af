package extract

import "context"

// TextExtractor is Stage 1: document bytes -> plain text.
// Implementations must be side-effect free beyond transient buffers and
// must never return partial text alongside an error.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}
