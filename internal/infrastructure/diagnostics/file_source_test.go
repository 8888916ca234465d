package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourceRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.txt")
	require.NoError(t, os.WriteFile(path, []byte("listen on 5433"), 0o644))

	src := NewFileSource(map[string]string{"server": path, "": "ignored"}, 0)

	content, err := src.Read(context.Background(), "server")
	require.NoError(t, err)
	assert.Equal(t, "listen on 5433", content)
	assert.Equal(t, []string{"server"}, src.Names())

	_, err = src.Read(context.Background(), "other")
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(map[string]string{"server": filepath.Join(t.TempDir(), "gone.txt")}, 0)
	_, err := src.Read(context.Background(), "server")
	assert.Error(t, err)
}

func TestFileSourceLimitKeepsValidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	// "héé": the limit of 4 bytes cuts the second é in half.
	require.NoError(t, os.WriteFile(path, []byte("héé"), 0o644))

	src := NewFileSource(map[string]string{"big": path}, 4)
	content, err := src.Read(context.Background(), "big")
	require.NoError(t, err)
	assert.Equal(t, "hé", content)
}
