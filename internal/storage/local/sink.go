// Package local implements a local filesystem record sink.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
	"github.com/JakeFAU/wikidot-crawler/internal/storage"
)

// Config captures the parameters for the local filesystem sink.
type Config struct {
	// BaseDir is the root directory where records will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Sink writes one JSON file per record under BaseDir.
type Sink struct {
	baseDir string
}

var _ crawler.RecordSink = (*Sink)(nil)

// New creates a new local filesystem-backed sink.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	// Check if the directory exists and is writable.
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Sink{baseDir: cfg.BaseDir}, nil
}

// Write stores the record at <base>/<kind>/<link>.json, replacing any earlier copy.
func (s *Sink) Write(ctx context.Context, record crawler.Record) error {
	rel, err := storage.ObjectPath("", record)
	if err != nil {
		return fmt.Errorf("local sink: %w", err)
	}
	data, err := storage.Encode(record)
	if err != nil {
		return err
	}
	if _, err := s.PutObject(ctx, rel, data); err != nil {
		return fmt.Errorf("local sink: %w", err)
	}
	return nil
}

// PutObject writes data to a file on the local filesystem and returns a file:// URI.
func (s *Sink) PutObject(_ context.Context, path string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, path)

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Write to a temp file first so readers never see a partial record.
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	return fmt.Sprintf("file://%s", fullPath), nil
}
