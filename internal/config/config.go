package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"banner-studio/internal/design"
)

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

type Config struct {
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiBackend    string
	Models           design.Models

	LogLevel   string
	PreferIPv4 bool

	RequestTimeout time.Duration
	HTTPTimeout    time.Duration

	WebAddr            string
	GalleryTTL         time.Duration
	MaxGalleryImages   int
	RateLimitPerMinute int

	TelegramToken      string
	TelegramDebug      bool
	MetricsAddr        string
	MediaGroupDebounce time.Duration
	MaxConcurrent      int
}

// Load reads the settings shared by every binary. GEMINI_API_KEY is
// optional: callers may bring their own key.
func Load() (Config, error) {
	cfg := Config{
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiBackend:    strings.ToLower(getEnv("GEMINI_BACKEND", BackendREST)),
		Models: design.Models{
			Primary:  getEnv("PRIMARY_IMAGE_MODEL", design.DefaultPrimaryModel),
			Fallback: getEnv("FALLBACK_IMAGE_MODEL", design.DefaultFallbackModel),
		},
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 600)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		WebAddr:            getEnv("WEB_ADDR", ":8080"),
		GalleryTTL:         time.Duration(getEnvInt("GALLERY_TTL_MINUTES", 120)) * time.Minute,
		MaxGalleryImages:   getEnvInt("MAX_GALLERY_IMAGES", 50),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
		TelegramDebug:      getEnvBool("TELEGRAM_DEBUG", false),
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
	}

	switch cfg.GeminiBackend {
	case BackendREST, BackendSDK:
	default:
		return Config{}, fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendREST, BackendSDK, cfg.GeminiBackend)
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 600 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.GalleryTTL <= 0 {
		cfg.GalleryTTL = 120 * time.Minute
	}
	if cfg.MaxGalleryImages < 1 {
		cfg.MaxGalleryImages = 1
	}
	if cfg.RateLimitPerMinute < 1 {
		cfg.RateLimitPerMinute = 1
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	return cfg, nil
}

// LoadBot is Load plus the Telegram token.
func LoadBot() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if cfg.TelegramToken == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
