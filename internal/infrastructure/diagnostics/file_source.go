package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/malan-ai/malan-server/internal/domain/chat"
)

// ErrUnknownResource is returned for names with no configured path.
var ErrUnknownResource = errors.New("unknown diagnostic resource")

// FileSource resolves logical resource names to files on disk.
type FileSource struct {
	paths    map[string]string
	maxBytes int64
}

var _ chat.DiagnosticSource = (*FileSource)(nil)

// NewFileSource reads at most maxBytes of each resource; zero means no limit.
func NewFileSource(paths map[string]string, maxBytes int64) *FileSource {
	copied := make(map[string]string, len(paths))
	for name, p := range paths {
		if name != "" && p != "" {
			copied[name] = p
		}
	}
	return &FileSource{paths: copied, maxBytes: maxBytes}
}

// Read returns the resource content. Content past the size limit is cut on a
// rune boundary.
func (s *FileSource) Read(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, ok := s.paths[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open diagnostic resource %s: %w", name, err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read diagnostic resource %s: %w", name, err)
	}
	if s.maxBytes > 0 && int64(len(data)) == s.maxBytes {
		data = trimPartialRune(data)
	}
	return string(data), nil
}

func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(data) > 0; i++ {
		r, size := utf8.DecodeLastRune(data)
		if r != utf8.RuneError || size != 1 {
			break
		}
		data = data[:len(data)-1]
	}
	return data
}

// Names lists the configured resource names.
func (s *FileSource) Names() []string {
	names := make([]string, 0, len(s.paths))
	for name := range s.paths {
		names = append(names, name)
	}
	return names
}
