package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/timesheet-approval/internal/application/port"
	"github.com/garyjia/timesheet-approval/internal/domain/apperr"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// LocalFileStorage implements port.FileStorage for local filesystem.
// Paths are relative to baseDir and may not escape it.
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFileStorage creates a new LocalFileStorage
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes content to the relative path. The file appears complete or not at all.
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(parentDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		s.logger.Error("Failed to write file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		s.logger.Error("Failed to move file into place", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Read reads content from the relative path
func (s *LocalFileStorage) Read(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to read file", zap.String("path", fullPath), zap.Error(err))
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Exists checks if a file exists at the relative path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Delete removes the file at the relative path; a missing file is not an error
func (s *LocalFileStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to delete file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.logger.Debug("File deleted", zap.String("path", fullPath))
	return nil
}

// GetFullPath converts a relative path to the location on disk
func (s *LocalFileStorage) GetFullPath(relativePath string) string {
	return filepath.Join(s.baseDir, sanitize(relativePath))
}

// resolve sanitizes the path and checks it stays within baseDir
func (s *LocalFileStorage) resolve(path string) (string, error) {
	fullPath := s.GetFullPath(path)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", apperr.Validation("path", "path escapes storage directory: %s", path)
	}
	return fullPath, nil
}

// sanitize keeps each segment to letters, digits, dot, dash and underscore
// and drops "." and ".." segments
func sanitize(path string) string {
	var parts []string
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		seg = unsafeChars.ReplaceAllString(seg, "_")
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...)
}

// Verify interface compliance
var _ port.FileStorage = (*LocalFileStorage)(nil)
