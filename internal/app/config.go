package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	RequestTimeout  time.Duration
	UpstreamTimeout time.Duration
	LogLevel        string
	LogFormat       string
	UserAgent       string
	DefaultLanguage string

	BooksEndpoint  string
	BooksAPIKey    string
	BooksRateLimit float64
	BooksBurst     int

	VideosEndpoint  string
	VideosAPIKey    string
	VideosRateLimit float64
	VideosBurst     int

	RedisURL         string
	CacheTTL         time.Duration
	CacheDisabled    bool
	KidsSafeCacheTTL time.Duration

	IngressRPS   float64
	IngressBurst int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout:  time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 25)) * time.Second,
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 8)) * time.Second,
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:       getEnv("DISCOVERY_USER_AGENT", "kidshelf-discovery/1.0"),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),

		BooksEndpoint:  getEnv("BOOKS_API_ENDPOINT", "https://www.googleapis.com/books/v1/volumes"),
		BooksAPIKey:    strings.TrimSpace(os.Getenv("BOOKS_API_KEY")),
		BooksRateLimit: getEnvFloat("BOOKS_RATE_LIMIT", 4),
		BooksBurst:     getEnvInt("BOOKS_RATE_BURST", 8),

		VideosEndpoint:  getEnv("VIDEOS_API_ENDPOINT", "https://www.googleapis.com/youtube/v3"),
		VideosAPIKey:    strings.TrimSpace(os.Getenv("VIDEOS_API_KEY")),
		VideosRateLimit: getEnvFloat("VIDEOS_RATE_LIMIT", 2),
		VideosBurst:     getEnvInt("VIDEOS_RATE_BURST", 4),

		RedisURL:         getEnv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getEnvInt("SEARCH_CACHE_TTL_HOURS", 6)) * time.Hour,
		CacheDisabled:    getEnvBool("SEARCH_CACHE_DISABLED", false),
		KidsSafeCacheTTL: time.Duration(getEnvInt("KIDS_SAFE_CACHE_TTL_HOURS", 24)) * time.Hour,

		IngressRPS:   getEnvFloat("HTTP_RATE_LIMIT", 10),
		IngressBurst: getEnvInt("HTTP_RATE_BURST", 20),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
