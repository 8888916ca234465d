package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFERENCE_API_KEY", "")
	t.Setenv("APIKEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5433, cfg.HTTPPort)
	assert.Equal(t, ":5433", cfg.Addr())
	assert.Equal(t, "openai/gpt-4o", cfg.InferenceModel)
	assert.Equal(t, cfg.InferenceModel, cfg.VisionModel)
	assert.InDelta(t, 0.7, cfg.InferenceTemperature, 0.0001)
	assert.InDelta(t, 0.9, cfg.InferenceTopP, 0.0001)
	assert.Equal(t, 512, cfg.InferenceMaxTokens)
	assert.Equal(t, "default", cfg.DefaultConversationID)
	assert.Equal(t, time.Duration(0), cfg.HistoryIdleTTL)
	assert.False(t, cfg.IsRedisHistory())
	assert.False(t, cfg.IsPostgresHistory())
	assert.True(t, cfg.IsLocalStorage())
	assert.False(t, cfg.StoresReplyFiles())
}

func TestLoadFallsBackToLegacyAPIKey(t *testing.T) {
	t.Setenv("INFERENCE_API_KEY", "")
	t.Setenv("APIKEY", " legacy-token ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.InferenceAPIKey)
}

func TestLoadPrefersExplicitAPIKey(t *testing.T) {
	t.Setenv("INFERENCE_API_KEY", "explicit")
	t.Setenv("APIKEY", "legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.InferenceAPIKey)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	cases := map[string]string{
		"HISTORY_BACKEND": "mongo",
		"STORAGE_BACKEND": "gcs",
		"REPLY_FILE_MODE": "email",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadBackendSelection(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "Redis")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("REPLY_FILE_MODE", "stored")
	t.Setenv("VISION_MODEL", "openai/gpt-4o-mini")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsRedisHistory())
	assert.False(t, cfg.IsLocalStorage())
	assert.True(t, cfg.StoresReplyFiles())
	assert.Equal(t, "openai/gpt-4o-mini", cfg.VisionModel)
}
