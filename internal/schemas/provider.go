// Package schemas resolves the extraction schema for a document type.
// Schemas live as JSON files on disk and are validated at load time;
// when no file exists for a type, the registered post-processor's
// default schema is used instead.
package schemas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
	"github.com/docuscan/docuscan/internal/postproc"
)

// Provider supplies the extraction schema for a document type.
type Provider interface {
	GetSchema(ctx context.Context, documentType string) (entity.ExtractionSchema, error)
}

// FileProvider reads <dir>/<type>.json, falling back to the processor
// registry's default schema when no file is present.
type FileProvider struct {
	dir      string
	registry *postproc.Registry
	logger   *slog.Logger
}

func NewFileProvider(dir string, registry *postproc.Registry, logger *slog.Logger) *FileProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{dir: dir, registry: registry, logger: logger}
}

func (p *FileProvider) GetSchema(_ context.Context, documentType string) (entity.ExtractionSchema, error) {
	name := strings.ToLower(strings.TrimSpace(documentType))
	if name == "" {
		return entity.ExtractionSchema{}, common.NewAppError("SCHEMA_ERROR", "document type is empty", common.ErrInvalidInput)
	}

	path := filepath.Join(p.dir, name+".json")
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if verr := validateAgainstSchema(configSchema(), raw); verr != nil {
			p.logger.Error("schemas.config_invalid", "type", name, "path", path, "error", verr)
			return entity.ExtractionSchema{}, common.NewAppError("SCHEMA_ERROR",
				fmt.Sprintf("schema config for %q is invalid", name), verr)
		}
		var s entity.ExtractionSchema
		if uerr := json.Unmarshal(raw, &s); uerr != nil {
			return entity.ExtractionSchema{}, common.WrapError(uerr, "decode schema config")
		}
		p.logger.Debug("schemas.loaded", "type", name, "required_fields", len(s.RequiredFields))
		return s, nil

	case errors.Is(err, os.ErrNotExist):
		if p.registry != nil {
			if proc, ok := p.registry.Lookup(name); ok {
				p.logger.Debug("schemas.default_used", "type", name)
				return proc.DefaultSchema(), nil
			}
		}
		return entity.ExtractionSchema{}, common.NewAppError("SCHEMA_ERROR",
			fmt.Sprintf("no schema configured for document type %q", name), common.ErrNotFound)

	default:
		return entity.ExtractionSchema{}, common.WrapError(err, "read schema config")
	}
}
