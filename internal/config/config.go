package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL           = "https://open.bigmodel.cn/api/paas/v4"
	DefaultModel             = "glm-image"
	DefaultQuality           = "standard"
	DefaultGenerationTimeout = 45 * time.Second
	DefaultFetchTimeout      = 60 * time.Second
	DefaultAllowedOrigin     = "http://localhost:5173"
)

// Config holds everything the relay reads from its environment.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Quality           string
	GenerationTimeout time.Duration
	FetchTimeout      time.Duration
	Addr              string
	HealthAddr        string
	AllowedOrigin     string
	LogDir            string
}

// Load reads an optional .env file from the working directory and then the
// process environment. ZHIPU_API_KEY is required.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored;
// variables already present in the environment win over the file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{
		APIKey:        strings.TrimSpace(os.Getenv("ZHIPU_API_KEY")),
		BaseURL:       envOrDefault("ZHIPU_BASE_URL", DefaultBaseURL),
		Model:         envOrDefault("GENERATION_MODEL", DefaultModel),
		Quality:       envOrDefault("GENERATION_QUALITY", DefaultQuality),
		Addr:          envOrDefault("RELAY_ADDR", ":8000"),
		AllowedOrigin: envOrDefault("ALLOWED_ORIGIN", DefaultAllowedOrigin),
		LogDir:        envOrDefault("LOG_DIR", ".log"),
	}

	// An explicitly empty HEALTH_ADDR turns the gRPC health listener off.
	if value, ok := os.LookupEnv("HEALTH_ADDR"); ok {
		cfg.HealthAddr = value
	} else {
		cfg.HealthAddr = ":9095"
	}

	var err error
	if cfg.GenerationTimeout, err = envDuration("GENERATION_TIMEOUT", DefaultGenerationTimeout); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = envDuration("DEPTH_FETCH_TIMEOUT", DefaultFetchTimeout); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ZHIPU_API_KEY is required")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envDuration accepts Go duration syntax ("45s", "1m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %d", key, seconds)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}
