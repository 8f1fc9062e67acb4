// Package config loads service configuration from the environment plus an
// optional yaml file for the parts that are awkward as env vars: mismatch
// thresholds, party names, and the user table.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"aquasplit/internal/auth"
	billing "aquasplit/internal/billing/domain"
)

// UserConfig is one account in the yaml file. Password hashes are hex
// SHA-256 digests.
type UserConfig struct {
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// FileConfig is the yaml-file portion of the configuration.
type FileConfig struct {
	Thresholds *billing.Thresholds   `yaml:"thresholds"`
	Party1     string                `yaml:"party1"`
	Party2     string                `yaml:"party2"`
	Users      map[string]UserConfig `yaml:"users"`
}

// Config is the resolved service configuration.
type Config struct {
	DatabaseURL  string
	WorkbookPath string
	HTTPAddr     string

	JWTSecret string
	TokenTTL  time.Duration
	Users     map[string]auth.User

	Thresholds billing.Thresholds
	Party1     string
	Party2     string
}

// Load resolves configuration from env vars and, when AQUASPLIT_CONFIG
// points at a yaml file, from that file. File values win for the fields
// the file carries.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		WorkbookPath: os.Getenv("WORKBOOK_PATH"),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		TokenTTL:     getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		Thresholds:   billing.DefaultThresholds(),
		Party1:       getenvDefault("PARTY1_NAME", "Party 1"),
		Party2:       getenvDefault("PARTY2_NAME", "Party 2"),
	}

	if path := os.Getenv("AQUASPLIT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var file FileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, err
		}
		cfg.applyFile(file)
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return cfg, err
	}
	if len(cfg.Users) > 0 && cfg.JWTSecret == "" {
		return cfg, errors.New("config: users configured but AUTH_JWT_SECRET missing")
	}
	return cfg, nil
}

func (c *Config) applyFile(file FileConfig) {
	if file.Thresholds != nil {
		c.Thresholds = *file.Thresholds
	}
	if file.Party1 != "" {
		c.Party1 = file.Party1
	}
	if file.Party2 != "" {
		c.Party2 = file.Party2
	}
	if len(file.Users) > 0 {
		c.Users = make(map[string]auth.User, len(file.Users))
		for name, user := range file.Users {
			role, ok := auth.NormalizeRole(user.Role)
			if !ok {
				role = auth.RoleViewer
			}
			c.Users[name] = auth.User{PasswordHash: user.PasswordHash, Role: role}
		}
	}
}

// AuthEnabled reports whether login and RBAC should be wired.
func (c Config) AuthEnabled() bool {
	return len(c.Users) > 0 && c.JWTSecret != ""
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
