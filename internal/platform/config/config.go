// Package config loads the control plane's layered configuration: YAML base
// file, then environment overrides decoded via envdecode, with .env support
// for local runs. Grounded on pkg/config/config.go in this lineage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the control-plane HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the bootstrap Postgres connection used to host the
// routing registry's own durable storage (spec §4.2 — "the only registry
// whose initial backend is selected by a bootstrap environment variable").
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `yaml:"host" env:"DATABASE_HOST"`
	Port            int    `yaml:"port" env:"DATABASE_PORT"`
	User            string `yaml:"user" env:"DATABASE_USER"`
	Password        string `yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// ConnectionString builds a libpq connection string from discrete fields,
// used when DSN is not set directly.
func (c DatabaseConfig) ConnectionString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// AuthConfig controls bearer-token validation for the identity resolver.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	JWTAudience string `yaml:"jwt_audience" env:"AUTH_JWT_AUDIENCE"`
	TenantClaim string `yaml:"tenant_claim" env:"AUTH_TENANT_CLAIM"`
	RoleClaim   string `yaml:"role_claim" env:"AUTH_ROLE_CLAIM"`
}

// BackendConfig names the allow-listed durable backend types per mode (spec
// §4.3 backend-class guard) and the bootstrap backend for the routing
// registry itself.
type BackendConfig struct {
	DurableBackendTypes  []string `yaml:"durable_backend_types"`
	LabModeExtraBackends []string `yaml:"lab_mode_extra_backends"`
	RegistryBootstrap    string   `yaml:"registry_bootstrap" env:"ROUTING_REGISTRY_BOOTSTRAP_BACKEND"`
}

// RedisConfig controls the go-redis-backed Memory capability adapter.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
}

// New returns defaults matching the spec's durable-only posture.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Backend: BackendConfig{
			DurableBackendTypes: []string{
				"firestore", "dynamodb", "cosmos", "s3", "gcs", "azureblob",
				"redis", "postgres", "lancedb",
			},
			LabModeExtraBackends: []string{"filesystem"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE, or
// configs/config.yaml if present) and then overlays environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// AllowedBackends returns the durable backend-type allow-list for the given
// mode, per spec §4.3 — lab mode additionally permits filesystem.
func (c *Config) AllowedBackends(mode string) map[string]bool {
	allowed := make(map[string]bool, len(c.Backend.DurableBackendTypes)+len(c.Backend.LabModeExtraBackends))
	for _, b := range c.Backend.DurableBackendTypes {
		allowed[b] = true
	}
	if mode == "lab" {
		for _, b := range c.Backend.LabModeExtraBackends {
			allowed[b] = true
		}
	}
	return allowed
}
