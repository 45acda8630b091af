// Package postproc enriches validated pipeline results per document
// type. Processors are purely additive: they compute derived fields and
// must never remove or invalidate existing keys.
package postproc

import (
	"strings"

	"github.com/docuscan/docuscan/internal/entity"
)

// Processor is one document-type variant. ProcessResult must be total:
// anything it cannot interpret is left untouched.
type Processor interface {
	ProcessResult(data map[string]any) map[string]any
	DefaultSchema() entity.ExtractionSchema
}

// Registry maps document-type names (case-insensitive) to processors.
// A missing entry is not an error; results pass through unmodified.
type Registry struct {
	procs map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Processor)}
}

// Defaults returns a registry with the built-in document types.
func Defaults() *Registry {
	r := NewRegistry()
	r.Register("invoice", InvoiceProcessor{})
	r.Register("contract", ContractProcessor{})
	return r
}

func (r *Registry) Register(docType string, p Processor) {
	r.procs[strings.ToLower(docType)] = p
}

func (r *Registry) Lookup(docType string) (Processor, bool) {
	p, ok := r.procs[strings.ToLower(docType)]
	return p, ok
}

// Apply runs the processor registered for docType, if any.
func (r *Registry) Apply(docType string, data map[string]any) map[string]any {
	p, ok := r.Lookup(docType)
	if !ok {
		return data
	}
	return p.ProcessResult(data)
}

func cloneResult(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	return out
}
