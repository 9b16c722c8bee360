package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvLNbitsKey    = "LNBITS_API_KEY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LNbitsConfig holds the Lightning payment backend settings.
type LNbitsConfig struct {
	Endpoint   string `yaml:"endpoint"`
	InvoiceKey string `yaml:"invoice-key"`
}

// RedisConfig holds the optional Redis backend for rate limiting.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BTCRateConfig holds the BTC/USD rate refresher settings.
type BTCRateConfig struct {
	RefreshInterval time.Duration `yaml:"refresh-interval"`
	StaleAfter      time.Duration `yaml:"stale-after"`
}

// LogConfig holds operational log output settings.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// ServiceConfig groups the optional service sections of the config file.
type ServiceConfig struct {
	JWT       JWTConfig     `yaml:"jwt"`
	LNbits    LNbitsConfig  `yaml:"lnbits"`
	Redis     RedisConfig   `yaml:"redis"`
	BTCRate   BTCRateConfig `yaml:"btc-rate"`
	Log       LogConfig     `yaml:"log"`
	RateLimit int           `yaml:"rate-limit"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadServiceConfig loads the service sections from the YAML config file
// and applies env overrides and defaults. A missing file yields defaults.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	result := ServiceConfig{
		JWT: JWTConfig{Expiry: defaultJWTExpiry},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg ServiceConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.JWT.Expiry = expiry
		}
	}
	if result.JWT.Expiry <= 0 {
		result.JWT.Expiry = defaultJWTExpiry
	}

	if key := strings.TrimSpace(os.Getenv(EnvLNbitsKey)); key != "" {
		result.LNbits.InvoiceKey = key
	}

	if result.RateLimit < 0 {
		result.RateLimit = 0
	}
	return result, nil
}
