package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/momento/go/internal/models"
)

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Registry struct {
		Backend  string `yaml:"backend"` // memory, redis or postgres
		RedisURL string `yaml:"redis_url"`
	} `yaml:"registry"`

	Rooms struct {
		DefaultExpiryMinutes int  `yaml:"default_expiry_minutes"`
		DestroyEmpty         bool `yaml:"destroy_empty"`
	} `yaml:"rooms"`

	WebSocket struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
	} `yaml:"websocket"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

func defaultConfig() *Config {
	var config Config
	config.Port = "8080"
	config.LogLevel = "info"
	config.Registry.Backend = BackendMemory
	config.Registry.RedisURL = "redis://localhost:6379/0"
	config.Rooms.DefaultExpiryMinutes = models.DefaultExpiryMinutes
	config.WebSocket.PingInterval = 30 * time.Second
	config.WebSocket.ReadTimeout = 60 * time.Second
	config.NATS.SubjectPrefix = "momento.rooms"
	return &config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads a YAML file over the built-in defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// resolveConfig builds the server config: defaults, then CONFIG_FILE if
// set, then environment variables.
func resolveConfig() (*Config, error) {
	config := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	config.Port = getEnv("PORT", config.Port)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.Registry.Backend = strings.ToLower(getEnv("REGISTRY_BACKEND", config.Registry.Backend))
	config.Registry.RedisURL = getEnv("REDIS_URL", config.Registry.RedisURL)
	config.Rooms.DefaultExpiryMinutes = getEnvAsInt("DEFAULT_EXPIRY_MINUTES", config.Rooms.DefaultExpiryMinutes)
	config.Rooms.DestroyEmpty = getEnvAsBool("DESTROY_EMPTY_ROOMS", config.Rooms.DestroyEmpty)
	config.WebSocket.PingInterval = getEnvAsDuration("WS_PING_INTERVAL", config.WebSocket.PingInterval)
	config.WebSocket.ReadTimeout = getEnvAsDuration("WS_READ_TIMEOUT", config.WebSocket.ReadTimeout)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", config.NATS.SubjectPrefix)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Registry.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	c.Rooms.DefaultExpiryMinutes = models.ClampExpiryMinutes(c.Rooms.DefaultExpiryMinutes)
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout (%s) must exceed ping interval (%s)",
			c.WebSocket.ReadTimeout, c.WebSocket.PingInterval)
	}
	return nil
}
