package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
)

// ErrObjectNotFound is returned by Download for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// Storage keeps generated reply files. Keys are flat file names.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	// PurgeOlderThan removes objects last modified before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Health(ctx context.Context) error
	Name() string
}

// New selects the backend named by STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Storage, error) {
	if cfg.IsLocalStorage() {
		return NewLocalStorage(cfg, log)
	}
	return NewS3Storage(ctx, cfg, log)
}
