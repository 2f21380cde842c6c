package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Watchlist backends
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// MinScreenIdleTTL is the shortest accepted SCREEN_IDLE_TTL
const MinScreenIdleTTL = time.Second

// CacheTTL holds cache TTL configuration for different catalog responses
type CacheTTL struct {
	Popular time.Duration
	Search  time.Duration
	Detail  time.Duration
	Similar time.Duration
	Credits time.Duration
}

// Config holds all configuration for the service
type Config struct {
	Port     string
	GinMode  string
	LogLevel string
	LogFile  string

	RedisURL         string
	WatchlistBackend string
	DatabaseURL      string

	TMDBAPIKeys   []string // 支持多个 API Key 轮询
	TMDBBaseURL   string
	TMDBImageBase string
	TMDBLanguage  string
	TMDBProxies   []string
	HTTPRetries   int

	SearchDebounce time.Duration
	MinQueryLength int
	SimilarLimit   int
	TopLimit       int
	ScreenIdleTTL  time.Duration

	CacheTTL CacheTTL

	AdminAPIKey string
	CORSOrigins []string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		WatchlistBackend: strings.ToLower(getEnv("WATCHLIST_BACKEND", BackendRedis)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),

		// 支持多个 TMDB API Key，用逗号分隔
		TMDBAPIKeys:   getEnvList("TMDB_API_KEY"),
		TMDBBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBase: getEnv("TMDB_IMAGE_BASE", "https://image.tmdb.org/t/p/w500"),
		TMDBLanguage:  getEnv("TMDB_LANGUAGE", "en-US"),
		TMDBProxies:   getEnvList("TMDB_PROXY"),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		CORSOrigins: getEnvList("CORS_ORIGINS"),
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.HTTPRetries, err = getEnvInt("HTTP_RETRIES", 3)
	collect(err)
	cfg.MinQueryLength, err = getEnvInt("MIN_QUERY_LENGTH", 3)
	collect(err)
	cfg.SimilarLimit, err = getEnvInt("SIMILAR_LIMIT", 5)
	collect(err)
	cfg.TopLimit, err = getEnvInt("TOP_CREDITS_LIMIT", 5)
	collect(err)

	cfg.SearchDebounce, err = getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond)
	collect(err)
	cfg.ScreenIdleTTL, err = getEnvDuration("SCREEN_IDLE_TTL", 30*time.Minute)
	collect(err)

	cfg.CacheTTL.Popular, err = getEnvDuration("CACHE_TTL_POPULAR", time.Hour)
	collect(err)
	cfg.CacheTTL.Search, err = getEnvDuration("CACHE_TTL_SEARCH", 30*time.Minute)
	collect(err)
	cfg.CacheTTL.Detail, err = getEnvDuration("CACHE_TTL_DETAIL", 24*time.Hour)
	collect(err)
	cfg.CacheTTL.Similar, err = getEnvDuration("CACHE_TTL_SIMILAR", 6*time.Hour)
	collect(err)
	cfg.CacheTTL.Credits, err = getEnvDuration("CACHE_TTL_CREDITS", 24*time.Hour)
	collect(err)

	collect(cfg.validate())
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.WatchlistBackend {
	case BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when WATCHLIST_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("WATCHLIST_BACKEND must be %q or %q, got %q", BackendRedis, BackendPostgres, c.WatchlistBackend))
	}

	tag, err := language.Parse(c.TMDBLanguage)
	if err != nil {
		errs = append(errs, fmt.Errorf("TMDB_LANGUAGE %q is not a valid language tag: %w", c.TMDBLanguage, err))
	} else {
		c.TMDBLanguage = tag.String()
	}

	if c.SearchDebounce <= 0 {
		errs = append(errs, errors.New("SEARCH_DEBOUNCE must be positive"))
	}
	if c.MinQueryLength < 1 {
		errs = append(errs, errors.New("MIN_QUERY_LENGTH must be at least 1"))
	}
	if c.SimilarLimit < 1 || c.TopLimit < 1 {
		errs = append(errs, errors.New("SIMILAR_LIMIT and TOP_CREDITS_LIMIT must be at least 1"))
	}
	if c.HTTPRetries < 1 {
		errs = append(errs, errors.New("HTTP_RETRIES must be at least 1"))
	}
	if c.ScreenIdleTTL < MinScreenIdleTTL {
		errs = append(errs, fmt.Errorf("SCREEN_IDLE_TTL must be at least %s", MinScreenIdleTTL))
	}
	return errors.Join(errs...)
}

// ScreenSweepInterval is how often idle screens are looked for
func (c *Config) ScreenSweepInterval() time.Duration {
	return max(c.ScreenIdleTTL/4, MinScreenIdleTTL/4)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 300ms or 1h: %w", key, err)
	}
	return d, nil
}
