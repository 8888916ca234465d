package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
)

const backendLocal = "local"

var errLocalStorageDisabled = errors.New("local storage is not configured; set LOCAL_STORAGE_PATH to enable")

// LocalStorage keeps reply files in a single directory.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
	disabled bool
}

// NewLocalStorage creates the storage directory when it does not exist.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		logger.Warn().Msg("LOCAL_STORAGE_PATH is not set; stored reply files will be disabled")
		return &LocalStorage{log: logger, disabled: true}, nil
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalStorage{basePath: basePath, log: logger}, nil
}

func (l *LocalStorage) Name() string { return backendLocal }

func (l *LocalStorage) ensureEnabled() error {
	if l.disabled {
		return errLocalStorageDisabled
	}
	return nil
}

// path resolves key inside basePath. Keys with separators or dot segments
// are rejected.
func (l *LocalStorage) path(key string) (string, bool) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key || strings.ContainsAny(key, `/\`) {
		return "", false
	}
	return filepath.Join(l.basePath, key), true
}

// Upload writes body to a temporary file and renames it into place, so a
// concurrent download never sees a partial file.
func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStorageOperation(backendLocal, "upload", err, time.Since(start).Seconds())
	}()

	if err := l.ensureEnabled(); err != nil {
		return err
	}
	fullPath, ok := l.path(key)
	if !ok {
		return fmt.Errorf("invalid storage key %q", key)
	}

	tmp, err := os.CreateTemp(l.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("file uploaded to local storage")
	return nil
}

// Download opens a stored file. The content type is sniffed from its bytes.
func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	start := time.Now()
	if err := l.ensureEnabled(); err != nil {
		return nil, "", err
	}
	fullPath, ok := l.path(key)
	if !ok {
		return nil, "", ErrObjectNotFound
	}

	mtype, err := mimetype.DetectFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrObjectNotFound
		}
		metrics.RecordStorageOperation(backendLocal, "download", err, time.Since(start).Seconds())
		return nil, "", fmt.Errorf("failed to inspect file: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrObjectNotFound
		}
		metrics.RecordStorageOperation(backendLocal, "download", err, time.Since(start).Seconds())
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	metrics.RecordStorageOperation(backendLocal, "download", nil, time.Since(start).Seconds())
	return file, mtype.String(), nil
}

func (l *LocalStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if l.disabled {
		return 0, nil
	}
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to list storage directory: %w", err)
	}

	purged := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.basePath, entry.Name())); err != nil && !os.IsNotExist(err) {
			l.log.Warn().Err(err).Str("key", entry.Name()).Msg("failed to remove expired reply file")
			continue
		}
		purged++
	}
	return purged, nil
}

// Health checks if the storage directory is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	if l.disabled {
		return nil
	}
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
