package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banner-studio/internal/design"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "GEMINI_BASE_URL", "GEMINI_API_VERSION", "GEMINI_BACKEND",
		"PRIMARY_IMAGE_MODEL", "FALLBACK_IMAGE_MODEL", "LOG_LEVEL", "PREFER_IPV4",
		"REQUEST_TIMEOUT_SECONDS", "HTTP_TIMEOUT_SECONDS", "WEB_ADDR", "GALLERY_TTL_MINUTES",
		"MAX_GALLERY_IMAGES", "RATE_LIMIT_PER_MINUTE", "MEDIA_GROUP_DEBOUNCE_MS", "MAX_CONCURRENT",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_DEBUG", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.GeminiAPIKey)
	assert.Equal(t, BackendREST, cfg.GeminiBackend)
	assert.Equal(t, design.DefaultPrimaryModel, cfg.Models.Primary)
	assert.Equal(t, design.DefaultFallbackModel, cfg.Models.Fallback)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.PreferIPv4)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 120*time.Minute, cfg.GalleryTTL)
	assert.Equal(t, 10, cfg.RateLimitPerMinute)
	assert.Equal(t, 1200*time.Millisecond, cfg.MediaGroupDebounce)
	assert.False(t, cfg.TelegramDebug)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " key ")
	t.Setenv("GEMINI_BACKEND", "SDK")
	t.Setenv("PRIMARY_IMAGE_MODEL", "custom-pro")
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("PREFER_IPV4", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.Equal(t, BackendSDK, cfg.GeminiBackend)
	assert.Equal(t, "custom-pro", cfg.Models.Primary)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 180*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.PreferIPv4)
}

func TestLoad_BadBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_BACKEND", "grpc")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBot(t *testing.T) {
	clearEnv(t)
	_, err := LoadBot()
	assert.EqualError(t, err, "TELEGRAM_BOT_TOKEN is required")

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_DEBUG", "true")
	t.Setenv("METRICS_ADDR", ":9090")
	cfg, err := LoadBot()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.True(t, cfg.TelegramDebug)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}
