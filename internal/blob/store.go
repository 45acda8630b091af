// Package blob stores and retrieves raw document bytes. The pipeline
// borrows bytes for the duration of one run and never retains them.
package blob

import "context"

// Store is the blob storage collaborator contract.
type Store interface {
	// Fetch returns the bytes stored under ref. A missing ref yields an
	// error wrapping common.ErrNotFound.
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Put(ctx context.Context, ref string, data []byte) error
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
}
