package pipeline

import "fmt"

// ExtractionError is recorded when the source document cannot be read.
// It is pipeline-fatal and not worth retrying: the input is deterministic.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("PDF extraction failed: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// LLMError is recorded when the model call fails (network, auth,
// provider error, timeout). Retry policy belongs to the queue layer.
type LLMError struct {
	Cause error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("ChatGPT processing failed: %v", e.Cause)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// EmptyResultError is recorded when parsing yields no keys at all.
type EmptyResultError struct{}

func (e *EmptyResultError) Error() string {
	return "No processing result generated"
}
