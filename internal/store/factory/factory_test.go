package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFromDSN_SQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewFromDSN(path)
	require.NoError(t, err, "bare path should select sqlite")
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestNewFromDSN_SQLiteScheme(t *testing.T) {
	s, err := NewFromDSN("sqlite://:memory:")
	require.NoError(t, err)
	_ = s.Close()
}

func TestNewFromDSN_Empty(t *testing.T) {
	_, err := NewFromDSN("  ")
	require.Error(t, err)
}
