package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
)

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	path := "snapshots/emp-1/2024-01-01_abc.xlsx"
	require.NoError(t, s.Save(ctx, path, []byte("workbook")))
	assert.True(t, s.Exists(ctx, path))

	content, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "workbook", string(content))

	_, err = os.Stat(filepath.Join(base, "snapshots", "emp-1", "2024-01-01_abc.xlsx"))
	assert.NoError(t, err)

	require.NoError(t, s.Save(ctx, path, []byte("v2")))
	content, err = s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	require.NoError(t, s.Delete(ctx, path))
	assert.False(t, s.Exists(ctx, path))
	assert.NoError(t, s.Delete(ctx, path), "deleting twice is fine")

	_, err = s.Read(ctx, path)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLocalFileStorage_NoTempFilesLeft(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())

	require.NoError(t, s.Save(context.Background(), "a/b.txt", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(base, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name())
}

func TestLocalFileStorage_StaysInBaseDir(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "../../etc/owner name/x.txt", []byte("x")))
	assert.Equal(t, filepath.Join(base, "etc", "owner_name", "x.txt"), s.GetFullPath("../../etc/owner name/x.txt"))

	err := s.Save(ctx, "..", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLocalFileStorage_CancelledContext(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, "a.txt", []byte("x")), context.Canceled)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a/b/c.xlsx", filepath.Join("a", "b", "c.xlsx")},
		{"/abs/path", filepath.Join("abs", "path")},
		{"a/../b", filepath.Join("a", "b")},
		{`win\style`, filepath.Join("win", "style")},
		{"user@corp/file", filepath.Join("user_corp", "file")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitize(tt.in), tt.in)
	}
}
