package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config carries everything the gateway needs from the environment.
type Config struct {
	AppEnv            string
	AppName           string
	AppPort           string
	MetricsPort       string
	LogLevel          string
	JWTSecret         string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int
	WSAllowedOrigins  []string
}

// Load reads configuration from the environment. Missing required values or
// unparsable numbers fail here, before anything starts serving.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        os.Getenv("APP_ENV"),
		AppName:       os.Getenv("APP_NAME"),
		AppPort:       os.Getenv("APP_PORT"),
		MetricsPort:   os.Getenv("METRICS_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
	if cfg.AppName == "" {
		cfg.AppName = "balance-gateway"
	}
	if cfg.AppPort == "" {
		cfg.AppPort = "8090"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}

	origins := os.Getenv("WS_ALLOWED_ORIGINS")
	if origins == "" {
		origins = "localhost,127.0.0.1"
	}
	cfg.WSAllowedOrigins = strings.Split(origins, ",")

	var err error
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.RedisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		cfg.RedisPoolSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MIN_IDLE_CONNS"); v != "" {
		cfg.RedisMinIdleConns, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MIN_IDLE_CONNS: %w", err)
		}
	}
	if v := os.Getenv("REDIS_MAX_RETRIES"); v != "" {
		cfg.RedisMaxRetries, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_MAX_RETRIES: %w", err)
		}
	}

	if cfg.JWTSecret == "" || cfg.RedisHost == "" {
		return nil, fmt.Errorf("missing required environment variables: JWT_SECRET, REDIS_HOST")
	}
	return cfg, nil
}
