package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultProviderURL is the last-resort provider endpoint used when
// AWS_API_URL is unset. It is a public API Gateway stage, not a secret.
const DefaultProviderURL = "https://vanobezo2c.execute-api.us-east-1.amazonaws.com/prod"

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Upload    UploadConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type ProviderConfig struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

type UploadConfig struct {
	MaxMemory int64 // bytes held in memory before multipart parts spill to disk
}

type RedisConfig struct {
	Addr     string // empty disables redis
	Password string
	DB       int
}

type RateLimitConfig struct {
	RPS   float64 // 0 disables rate limiting
	Burst int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}

	providerTimeout, err := getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}

	healthTimeout, err := getEnvDuration("PROVIDER_HEALTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_HEALTH_TIMEOUT: %w", err)
	}

	maxMemory, err := getEnvInt("UPLOAD_MAX_MEMORY", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_MEMORY: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         port,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		Provider: ProviderConfig{
			BaseURL:       strings.TrimRight(getEnv("AWS_API_URL", DefaultProviderURL), "/"),
			Timeout:       providerTimeout,
			HealthTimeout: healthTimeout,
		},
		Upload: UploadConfig{
			MaxMemory: int64(maxMemory),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins(),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("AWS_API_URL is not an absolute URL: %q", c.Provider.BaseURL))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		problems = append(problems, "SERVER_READ_TIMEOUT and SERVER_WRITE_TIMEOUT must be positive")
	}
	if c.Provider.Timeout <= 0 {
		problems = append(problems, "PROVIDER_TIMEOUT must be positive")
	}
	// The write deadline covers reading the upload and the provider call; a
	// shorter one drops the connection before the fallback body is written.
	if budget := c.Server.ReadTimeout + c.Provider.Timeout; c.Server.WriteTimeout <= budget {
		problems = append(problems, fmt.Sprintf(
			"SERVER_WRITE_TIMEOUT (%s) must exceed SERVER_READ_TIMEOUT + PROVIDER_TIMEOUT (%s)",
			c.Server.WriteTimeout, budget))
	}
	if c.Provider.HealthTimeout <= 0 {
		problems = append(problems, "PROVIDER_HEALTH_TIMEOUT must be positive")
	}
	if c.Upload.MaxMemory <= 0 {
		problems = append(problems, "UPLOAD_MAX_MEMORY must be positive")
	}
	if c.RateLimit.RPS < 0 {
		problems = append(problems, "RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		problems = append(problems, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// corsOrigins defaults to "*" when CORS_ALLOWED_ORIGINS is unset. Setting it
// to an empty value disables CORS.
func corsOrigins() []string {
	v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS")
	if !ok {
		return []string{"*"}
	}
	return splitList(v)
}
