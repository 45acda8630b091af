package postproc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docuscan/docuscan/internal/entity"
)

// InvoiceProcessor derives numeric totals and line-item counts from an
// extracted invoice.
type InvoiceProcessor struct{}

func (InvoiceProcessor) ProcessResult(data map[string]any) map[string]any {
	out := cloneResult(data)

	if v, ok := out["total_amount"]; ok {
		out["total_amount_numeric"] = parseAmount(v)
	}
	if items, ok := out["line_items"].([]any); ok {
		out["line_items_count"] = len(items)
	}
	return out
}

func (InvoiceProcessor) DefaultSchema() entity.ExtractionSchema {
	return entity.ExtractionSchema{
		SystemInstruction: "You are a document processing assistant specializing in invoice data extraction. " +
			"Extract information accurately and return it in JSON format.",
		ExtractionInstruction: "Extract the following information from this invoice:\n" +
			"- invoice_number\n" +
			"- date\n" +
			"- vendor_name\n" +
			"- total_amount\n" +
			"- line_items (array of {description, quantity, unit_price, total})\n\n" +
			"Return the data as valid JSON.",
		RequiredFields: []string{"invoice_number", "vendor_name", "total_amount"},
	}
}

// parseAmount reads a currency-ish value ("$1,234.50", 1234.5) as a
// float. Unparseable input yields 0 rather than an error: enrichment
// must not fail the job.
func parseAmount(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	s := fmt.Sprintf("%v", v)
	s = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
