package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuscan/docuscan/internal/common"
)

// LocalStore keeps blobs as files under a base directory. Used for
// single-node deployments and tests.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(ref string) (string, error) {
	clean := filepath.Clean("/" + ref)
	if strings.Contains(clean, "..") {
		return "", common.NewAppError("BLOB_ERROR", "invalid ref", common.ErrInvalidInput)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *LocalStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.NewAppError("BLOB_ERROR", fmt.Sprintf("blob %q not found", ref), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.WrapError(err, "read blob")
	}
	return data, nil
}

func (s *LocalStore) Put(_ context.Context, ref string, data []byte) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return common.WrapError(err, "create blob subdir")
	}
	return common.WrapError(os.WriteFile(p, data, 0o644), "write blob")
}

func (s *LocalStore) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return common.WrapError(err, "delete blob")
	}
	return nil
}

func (s *LocalStore) Exists(_ context.Context, ref string) (bool, error) {
	p, err := s.path(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, common.WrapError(err, "stat blob")
	}
	return true, nil
}
