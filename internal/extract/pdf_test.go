package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	name string
	args []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	return s.stdout, s.stderr, s.err
}

func TestExtractNormalizesPages(t *testing.T) {
	// pdftotext separates pages with form feeds; output must be
	// newline-separated in page order, trimmed.
	r := &stubRunner{stdout: []byte("page one\n\fpage two\n\fpage three\n\f")}
	e := NewPDFExtractor(Config{}, nil).WithRunner(r)

	text, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "page one\n\npage two\n\npage three", text)

	require.Equal(t, "pdftotext", r.name)
	require.Equal(t, "-layout", r.args[0])
	require.Equal(t, "-", r.args[len(r.args)-1])
}

func TestExtractInvalidPDF(t *testing.T) {
	r := &stubRunner{
		stderr: []byte("Syntax Error: Document stream is empty\nSyntax Error: Couldn't read xref table"),
		err:    errors.New("exit status 1"),
	}
	e := NewPDFExtractor(Config{}, nil).WithRunner(r)

	_, err := e.Extract(context.Background(), []byte("not a pdf"))
	require.Error(t, err)
	// stderr's first line becomes the cause, not the exec error
	require.Equal(t, "Syntax Error: Document stream is empty", err.Error())
}

func TestExtractFailureWithoutStderr(t *testing.T) {
	r := &stubRunner{err: errors.New("exit status 99")}
	e := NewPDFExtractor(Config{}, nil).WithRunner(r)

	_, err := e.Extract(context.Background(), []byte("bytes"))
	require.EqualError(t, err, "exit status 99")
}

func TestExtractMaxPages(t *testing.T) {
	r := &stubRunner{stdout: []byte("just one page")}
	e := NewPDFExtractor(Config{Pdftotext: "/opt/poppler/pdftotext", MaxPages: 5}, nil).WithRunner(r)

	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "/opt/poppler/pdftotext", r.name)
	require.Contains(t, r.args, "-l")
	require.Contains(t, r.args, "5")
}
