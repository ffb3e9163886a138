// Package config loads the ingestor's YAML configuration with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/domain"
)

const (
	// DefaultReadTimeoutSeconds is the default read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30

	defaultRunRetentionDays = 30
	defaultGraceDays        = 7
	defaultResolverVersion  = 1
	defaultWorkers          = 4
	defaultFetchTimeout     = 60 * time.Second
)

type Config struct {
	Debug     bool               `yaml:"debug"` // Controls log level and format
	Server    ServerConfig       `yaml:"server"`
	Database  database.Config    `yaml:"database"`
	Redis     RedisConfig        `yaml:"redis"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Fetcher   FetcherConfig      `yaml:"fetcher"`
	Resolver  ResolverConfig     `yaml:"resolver"`
	Grace     domain.GracePolicy `yaml:"subscription_grace"`
	Uploads   UploadsConfig      `yaml:"uploads"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	Workers      int           `yaml:"workers"`
	RunRetention time.Duration `yaml:"run_retention"`
}

type FetcherConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ResolverConfig struct {
	Version        int    `yaml:"version"`
	MatchThreshold string `yaml:"match_threshold"` // HIGH, MEDIUM or LOW
}

type UploadsConfig struct {
	Dir string `yaml:"dir"` // Staged push-upload directory
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
	CORSOrigins  []string      `yaml:"cors_origins"`  // Empty allows all
}

// Validate checks if the server configuration is valid and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Scheduler.RunRetention <= 0 {
		return fmt.Errorf("scheduler.run_retention must be positive, got %v", c.Scheduler.RunRetention)
	}
	switch strings.ToUpper(c.Resolver.MatchThreshold) {
	case "HIGH", "MEDIUM", "LOW":
	default:
		return fmt.Errorf("resolver.match_threshold must be HIGH, MEDIUM or LOW, got %q", c.Resolver.MatchThreshold)
	}
	return nil
}

// MatchThresholdTier returns the configured resolver threshold as a tier.
func (c *Config) MatchThresholdTier() domain.MatchTier {
	return domain.MatchTier(strings.ToUpper(c.Resolver.MatchThreshold))
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = defaultWorkers
	}
	if cfg.Scheduler.RunRetention == 0 {
		cfg.Scheduler.RunRetention = defaultRunRetentionDays * 24 * time.Hour
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = defaultFetchTimeout
	}
	if cfg.Resolver.Version == 0 {
		cfg.Resolver.Version = defaultResolverVersion
	}
	if cfg.Resolver.MatchThreshold == "" {
		cfg.Resolver.MatchThreshold = "MEDIUM"
	}
	if cfg.Grace.GracePeriod == 0 {
		cfg.Grace.GracePeriod = defaultGraceDays * 24 * time.Hour
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = "/var/lib/pricefeed/uploads"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		cfg.Database.Port = port
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.DBName = name
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}
	if port := os.Getenv("INGESTOR_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
