// Package config loads engine configuration from a YAML file and environment
// variable overrides.
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

// ServerConfig controls the reference HTTP API.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the ledger/index persistence backend.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// CacheConfig controls the optional Redis-backed rolling-metrics cache used
// by FRS and the ITC equivalence-band computation. When Addr is empty the
// engine falls back to an in-process cache.
type CacheConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"CACHE_REDIS_ADDR"`
	Password string `json:"password" yaml:"password" env:"CACHE_REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"CACHE_REDIS_DB"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// NodeConfig identifies this engine instance within the federation.
// Exactly one of PrivateKey or KeySeed should be set: PrivateKey is used
// verbatim, KeySeed is stretched into a key through HKDF. Neither set
// means an ephemeral key is generated at boot.
type NodeConfig struct {
	ID          string `json:"id" yaml:"id" env:"NODE_ID"`
	PrivateKey  string `json:"private_key" yaml:"private_key" env:"NODE_PRIVATE_KEY"`
	KeySeed     string `json:"key_seed" yaml:"key_seed" env:"NODE_KEY_SEED"`
	RegionScope string `json:"region_scope" yaml:"region_scope" env:"NODE_REGION_SCOPE"`
}

// PolicyConfig seeds default policy documents (weighting, decay, consensus
// thresholds, bottleneck coefficients) that are otherwise supplied by their
// owning subsystem's administrative API.
type PolicyConfig struct {
	ConsensusThreshold    float64 `json:"consensus_threshold" yaml:"consensus_threshold" env:"POLICY_CONSENSUS_THRESHOLD"`
	MinConsensusThreshold float64 `json:"min_consensus_threshold" yaml:"min_consensus_threshold" env:"POLICY_MIN_CONSENSUS_THRESHOLD"`
	ObjectionThreshold    float64 `json:"objection_threshold" yaml:"objection_threshold" env:"POLICY_OBJECTION_THRESHOLD"`
	EscalationEnabled     bool    `json:"escalation_enabled" yaml:"escalation_enabled" env:"POLICY_ESCALATION_ENABLED"`
	BottleneckThreshold   float64 `json:"bottleneck_threshold" yaml:"bottleneck_threshold" env:"POLICY_BOTTLENECK_THRESHOLD"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Node     NodeConfig     `json:"node" yaml:"node"`
	Policy   PolicyConfig   `json:"policy" yaml:"policy"`
}

// New returns a configuration populated with defaults matching the spec's
// literal example values (§8).
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Node: NodeConfig{
			ID: "node-local",
		},
		Policy: PolicyConfig{
			ConsensusThreshold:    0.6,
			MinConsensusThreshold: 0.4,
			ObjectionThreshold:    0.3,
			EscalationEnabled:     true,
			BottleneckThreshold:   0.15,
		},
	}
}

// ConnectionString builds a PostgreSQL connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	if strings.TrimSpace(c.DSN) != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

const defaultConfigPath = "configs/config.yaml"

// Load builds a Config from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence. The file
// path comes from $CONFIG_FILE, falling back to defaultConfigPath; a
// missing file at the default path is not an error, since every field has
// a usable default.
//
// An explicit $CONFIG_FILE that fails to load is fatal (the operator asked
// for that file); a missing defaultConfigPath is silently skipped.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := New()

	explicit := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	path := defaultConfigPath
	mustExist := false
	if explicit != "" {
		path, mustExist = explicit, true
	}
	if err := loadFromFile(path, cfg, mustExist); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil && !isNoFieldsSetError(err) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

// isNoFieldsSetError reports whether err is envdecode's way of saying none
// of Config's env-tagged fields had a corresponding environment variable —
// the expected outcome for a local run with nothing exported, not a real
// decode failure.
func isNoFieldsSetError(err error) bool {
	return strings.Contains(err.Error(), "none of the target fields were set")
}

// loadFromFile merges the YAML document at path into cfg. A path that
// doesn't exist is a no-op unless required is true.
func loadFromFile(path string, cfg *Config, required bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path %q: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", abs, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", abs, err)
	}
	return nil
}
