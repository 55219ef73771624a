// Package files stores uploaded document contents on the local filesystem or
// in an S3-compatible bucket.
package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"lawdesk.org/internal/apperr"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = apperr.NotFound("file_not_found", "stored file not found")

// Store is implemented by every backend. Delete of a missing key succeeds.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
}

// New builds the backend named by cfg.Backend ("fs" or "s3").
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("files: unknown backend %q", cfg.Backend)
	}
}

// cleanKey rejects keys that are absolute or escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return "", fmt.Errorf("files: invalid key %q", key)
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", fmt.Errorf("files: invalid key %q", key)
	}
	return clean, nil
}
