package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuscan/docuscan/internal/common"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc_report.pdf", []byte("%PDF-1.4 data")))

	ok, err := s.Exists(ctx, "abc_report.pdf")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := s.Fetch(ctx, "abc_report.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 data"), data)

	require.NoError(t, s.Delete(ctx, "abc_report.pdf"))
	ok, err = s.Exists(ctx, "abc_report.pdf")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalStoreFetchMissing(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "nope.pdf")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLocalStoreDeleteMissingIsNoop(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "nope.pdf"))
}

func TestLocalStoreNestedRef(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "2026/09/doc.pdf", []byte("x")))
	data, err := s.Fetch(ctx, "2026/09/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), data)
}

// Refs are confined to the base directory.
func TestLocalStoreTraversalRefConfined(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, common.ErrNotFound)
}
