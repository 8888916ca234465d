package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malan-ai/malan-server/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func TestNewJSONLoggerCarriesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&config.Config{
		ServiceName: "malan-chat-api",
		Environment: "test",
		LogLevel:    "info",
		LogFormat:   "json",
	}, &buf)

	log.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "malan-chat-api", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "hello", entry["message"])

	buf.Reset()
	log.Debug().Msg("suppressed")
	assert.Empty(t, buf.String())

	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}
