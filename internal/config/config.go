package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	EventSubject     string
	JWTSecret        string
	JWTRefreshSecret string
	DockerHost       string
	ExecutionTimeout time.Duration
	WebhookTimeout   time.Duration
	SandboxTimeout   time.Duration
	ActionCacheTTL   time.Duration
	RecomputeWorkers int
	SubmitRateLimit  int
	CodeRunMemoryMB  int
	CodeRunCPUShares int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDUGRAPH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "EduGraph API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("event.subject", "edugraph")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("webhook_timeout_ms", 10000)
	v.SetDefault("sandbox_timeout_ms", 2000)
	v.SetDefault("action_cache_ttl", "1h")
	v.SetDefault("recompute_workers", 4)
	v.SetDefault("submit_rate_limit", 30)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)

	cacheTTLString := v.GetString("action_cache_ttl")
	if cacheTTLString == "" {
		cacheTTLString = "1h"
	}

	cacheTTL, err := time.ParseDuration(cacheTTLString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid action cache ttl: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		EventSubject:     v.GetString("event.subject"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTRefreshSecret: v.GetString("jwt.refresh_secret"),
		DockerHost:       v.GetString("docker_host"),
		ExecutionTimeout: millis(v.GetInt("execution_timeout_ms"), 5000),
		WebhookTimeout:   millis(v.GetInt("webhook_timeout_ms"), 10000),
		SandboxTimeout:   millis(v.GetInt("sandbox_timeout_ms"), 2000),
		ActionCacheTTL:   cacheTTL,
		RecomputeWorkers: v.GetInt("recompute_workers"),
		SubmitRateLimit:  v.GetInt("submit_rate_limit"),
		CodeRunMemoryMB:  v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares: v.GetInt("code_run_cpu_shares"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.RecomputeWorkers <= 0 {
		cfg.RecomputeWorkers = 4
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func millis(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}
