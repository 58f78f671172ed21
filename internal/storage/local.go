package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/satymtripathi/microbiology/pkg/config"
	"github.com/satymtripathi/microbiology/pkg/logger"
)

// LocalStore writes images under a directory on disk
type LocalStore struct {
	basePath string
	logger   *logger.Logger
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(basePath string, log *logger.Logger) (*LocalStore, error) {
	if basePath == "" {
		basePath = "uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &LocalStore{basePath: basePath, logger: log}, nil
}

func (s *LocalStore) Backend() string { return config.StorageBackendLocal }

// Save writes data as {unix}_{random hex}{ext} and returns that file name
func (s *LocalStore) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	suffix, err := randomHex(8)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%d_%s%s", time.Now().Unix(), suffix, extensionFor(name, contentType))

	if err := os.WriteFile(filepath.Join(s.basePath, key), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"bytes": len(data),
	}).Debug("Image stored on disk")
	return key, nil
}

// Open returns the file for key. Keys containing path separators are
// rejected so a key can never escape the base directory.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, ErrImageNotFound
	}

	f, err := os.Open(filepath.Join(s.basePath, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return f, nil
}

// Ping verifies the directory still exists
func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("image directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("image path %s is not a directory", s.basePath)
	}
	return nil
}

func randomHex(length int) (string, error) {
	b := make([]byte, length/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	return hex.EncodeToString(b), nil
}
