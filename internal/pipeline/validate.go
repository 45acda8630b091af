package pipeline

import "fmt"

// validationErrorsKey is the result key holding missing-field messages.
const validationErrorsKey = "validation_errors"

// ValidateRequired annotates data with a message for every name in
// required that is absent. It never removes or mutates existing fields
// and never fails: gaps are reported as data, not rejected. Applying it
// twice yields the same list (no duplicate appends).
func ValidateRequired(data map[string]any, required []string) map[string]any {
	var existing []string
	switch v := data[validationErrorsKey].(type) {
	case []string:
		existing = v
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				existing = append(existing, s)
			}
		}
	}

	seen := make(map[string]struct{}, len(existing))
	for _, msg := range existing {
		seen[msg] = struct{}{}
	}

	msgs := existing
	for _, field := range required {
		if _, ok := data[field]; ok {
			continue
		}
		msg := fmt.Sprintf("Missing required field: %s", field)
		if _, dup := seen[msg]; dup {
			continue
		}
		msgs = append(msgs, msg)
		seen[msg] = struct{}{}
	}

	if len(msgs) > 0 {
		data[validationErrorsKey] = msgs
	}
	return data
}
