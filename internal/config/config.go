package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Media     MediaConfig
	Worker    WorkerConfig
	Shelters  SheltersConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

type MediaConfig struct {
	Dir            string
	MaxUploadBytes int64
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SheltersConfig struct {
	Enabled      bool
	FeedURL      string
	PollInterval time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

type RateLimitConfig struct {
	RPS int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Media: MediaConfig{
			Dir:            getEnv("MEDIA_DIR", "./data/media"),
			MaxUploadBytes: int64(getEnvInt("MEDIA_MAX_UPLOAD_BYTES", 10<<20)),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Shelters: SheltersConfig{
			Enabled:      getEnvBool("SHELTER_FEED_ENABLED", false),
			FeedURL:      getEnv("SHELTER_FEED_URL", ""),
			PollInterval: getEnvDuration("SHELTER_FEED_POLL_INTERVAL", 15*time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/civic-response.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		RateLimit: RateLimitConfig{
			RPS: getEnvInt("RATE_LIMIT_RPS", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.SessionTTL < time.Minute {
		return fmt.Errorf("session TTL must be at least 1 minute")
	}

	if c.Media.MaxUploadBytes < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.Media.MaxUploadBytes)
	}

	if c.Shelters.Enabled {
		if c.Shelters.FeedURL == "" {
			return fmt.Errorf("shelter feed enabled but SHELTER_FEED_URL is empty")
		}
		if c.Shelters.PollInterval < time.Minute {
			return fmt.Errorf("shelter feed poll interval must be at least 1 minute")
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
