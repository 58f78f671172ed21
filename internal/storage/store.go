// Package storage keeps the clinical images attached to sample requests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/satymtripathi/microbiology/pkg/config"
	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// ErrImageNotFound is returned by Open for an unknown key
var ErrImageNotFound = errors.New("image not found")

// ImageStore persists image bytes and hands back an opaque key
type ImageStore interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Ping(ctx context.Context) error
	Backend() string
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ValidateImage checks the upload size and sniffs its content type. The
// declared type is ignored; the bytes decide. Returns the detected type.
func ValidateImage(upload *types.ImageUpload, maxBytes int64) (string, error) {
	if len(upload.Data) == 0 {
		return "", types.NewValidationError(types.ErrCodeImageRejected, "Image is empty", nil)
	}
	if maxBytes > 0 && int64(len(upload.Data)) > maxBytes {
		return "", types.NewValidationError(types.ErrCodeImageRejected,
			fmt.Sprintf("Image exceeds the %d byte limit", maxBytes), nil)
	}

	detected := http.DetectContentType(upload.Data)
	if _, ok := allowedTypes[detected]; !ok {
		return "", types.NewValidationError(types.ErrCodeImageRejected,
			"Only JPEG, PNG and GIF images are accepted",
			map[string]interface{}{"image": detected})
	}
	return detected, nil
}

// extensionFor keeps the uploaded extension when it agrees with the content
// type and falls back to the canonical one
func extensionFor(name, contentType string) string {
	ext := strings.ToLower(filepath.Ext(name))
	canonical := allowedTypes[contentType]
	switch {
	case ext == canonical:
		return ext
	case ext == ".jpeg" && canonical == ".jpg":
		return ext
	case canonical != "":
		return canonical
	default:
		return ext
	}
}

// New builds the store selected by cfg.Backend
func New(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (ImageStore, error) {
	switch cfg.Backend {
	case config.StorageBackendS3:
		return NewS3Store(ctx, cfg.S3, log)
	case config.StorageBackendLocal, "":
		return NewLocalStore(cfg.LocalPath, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
