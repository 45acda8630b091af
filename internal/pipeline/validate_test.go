package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequired(t *testing.T) {
	data := map[string]any{"invoice_number": "123"}
	got := ValidateRequired(data, []string{"invoice_number", "vendor_name", "total_amount"})

	require.Equal(t, "123", got["invoice_number"], "existing fields are never touched")
	require.Equal(t, []string{
		"Missing required field: vendor_name",
		"Missing required field: total_amount",
	}, got["validation_errors"])
}

func TestValidateRequiredAllPresent(t *testing.T) {
	data := map[string]any{"a": 1, "b": 2}
	got := ValidateRequired(data, []string{"a", "b"})
	_, ok := got["validation_errors"]
	require.False(t, ok, "no errors key when nothing is missing")
}

func TestValidateRequiredIdempotent(t *testing.T) {
	data := map[string]any{"a": 1}
	required := []string{"a", "b", "c"}

	once := ValidateRequired(data, required)
	twice := ValidateRequired(once, required)
	require.Equal(t, []string{
		"Missing required field: b",
		"Missing required field: c",
	}, twice["validation_errors"])
}

// Results decoded from JSON carry validation_errors as []any; a second
// pass must still not duplicate them.
func TestValidateRequiredExistingAnySlice(t *testing.T) {
	data := map[string]any{
		"a":                 1,
		"validation_errors": []any{"Missing required field: b"},
	}
	got := ValidateRequired(data, []string{"a", "b", "c"})
	require.Equal(t, []string{
		"Missing required field: b",
		"Missing required field: c",
	}, got["validation_errors"])
}

func TestValidateRequiredEmptyList(t *testing.T) {
	data := map[string]any{"x": "y"}
	got := ValidateRequired(data, nil)
	require.Equal(t, map[string]any{"x": "y"}, got)
}
