package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuscan/docuscan/internal/entity"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte) (string, error) {
	return s.text, s.err
}

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.response, s.err
}

func invoiceSchema() entity.ExtractionSchema {
	return entity.ExtractionSchema{
		SystemInstruction:     "You extract invoice data.",
		ExtractionInstruction: "Extract invoice_number, vendor_name and total_amount.",
		RequiredFields:        []string{"invoice_number", "vendor_name", "total_amount"},
	}
}

func TestRunReportsMissingRequiredFields(t *testing.T) {
	ex := &stubExtractor{text: "Invoice #123\nTotal: $50.00"}
	cm := &stubCompleter{response: `{"invoice_number":"123","total_amount":"$50.00"}`}
	p := New(ex, cm, nil)

	result, err := p.Run(context.Background(), []byte("%PDF"), invoiceSchema())
	require.NoError(t, err)
	require.Equal(t, "123", result["invoice_number"])
	require.Equal(t, []string{"Missing required field: vendor_name"}, result["validation_errors"])
}

func TestRunExtractionFailureNeverCallsModel(t *testing.T) {
	ex := &stubExtractor{err: errors.New("Syntax Error: not a PDF")}
	cm := &stubCompleter{response: `{}`}
	p := New(ex, cm, nil)

	_, err := p.Run(context.Background(), []byte("garbage"), invoiceSchema())
	require.Error(t, err)

	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, "PDF extraction failed: Syntax Error: not a PDF", err.Error())
	require.Zero(t, cm.calls, "model must not be called after extraction failure")
}

func TestRunModelFailure(t *testing.T) {
	ex := &stubExtractor{text: "some text"}
	cm := &stubCompleter{err: errors.New("status 500")}
	p := New(ex, cm, nil)

	_, err := p.Run(context.Background(), []byte("%PDF"), invoiceSchema())
	require.Error(t, err)

	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	require.Equal(t, "ChatGPT processing failed: status 500", err.Error())
}

func TestRunEmptyResult(t *testing.T) {
	ex := &stubExtractor{text: "some text"}
	cm := &stubCompleter{response: `{}`}
	p := New(ex, cm, nil)

	_, err := p.Run(context.Background(), []byte("%PDF"), invoiceSchema())
	require.Error(t, err)

	var emptyErr *EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	require.Equal(t, "No processing result generated", err.Error())
}

func TestRunDegradedParseStillSucceeds(t *testing.T) {
	ex := &stubExtractor{text: "some text"}
	cm := &stubCompleter{response: "Sorry, I cannot help."}
	p := New(ex, cm, nil)

	result, err := p.Run(context.Background(), []byte("%PDF"), invoiceSchema())
	require.NoError(t, err, "malformed model output is data, not an error")
	require.Equal(t, "Sorry, I cannot help.", result["raw_response"])
	require.Equal(t, "Failed to extract valid JSON from ChatGPT response", result["parsing_error"])
}

func TestRunCancelledContext(t *testing.T) {
	ex := &stubExtractor{text: "some text"}
	cm := &stubCompleter{response: `{"a":1}`}
	p := New(ex, cm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []byte("%PDF"), invoiceSchema())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, cm.calls)
}
