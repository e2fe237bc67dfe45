// Package config loads application configuration from environment variables,
// an optional .env file, and an optional YAML overlay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig is retained for symmetry with a future transport adapter;
// the core itself does not listen on a socket.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Output string `json:"output" env:"LOG_OUTPUT"`
}

// TracingConfig configures the tracer adapter.
type TracingConfig struct {
	ServiceName        string            `json:"service_name" env:"TRACING_SERVICE_NAME"`
	ResourceAttributes map[string]string `json:"resource_attributes" yaml:"resource_attributes"`
	AttributesEnv      string            `json:"-" yaml:"-" env:"TRACING_ATTRIBUTES"`
}

// PipelineConfig controls the analysis pipeline (C3).
type PipelineConfig struct {
	OverallDeadline       time.Duration `json:"overall_deadline" env:"PIPELINE_OVERALL_DEADLINE"`
	RequireAllAnalyzers   bool          `json:"require_all_analyzers" env:"PIPELINE_REQUIRE_ALL_ANALYZERS"`
	MaxConcurrentAnalyses int           `json:"max_concurrent_analyses" env:"PIPELINE_MAX_CONCURRENT_ANALYSES"`
	WorkerPoolSize        int           `json:"worker_pool_size" env:"PIPELINE_WORKER_POOL_SIZE"`
	ResultCacheSize       int           `json:"result_cache_size" env:"PIPELINE_RESULT_CACHE_SIZE"`
	ResultCacheTTL        time.Duration `json:"result_cache_ttl" env:"PIPELINE_RESULT_CACHE_TTL"`
	ArtifactFetchRetries  int           `json:"artifact_fetch_retries" env:"PIPELINE_ARTIFACT_FETCH_RETRIES"`
}

// BountyConfig controls the bounty state machine (C4).
type BountyConfig struct {
	SubmissionQueueDepth    int `json:"submission_queue_depth" env:"BOUNTY_SUBMISSION_QUEUE_DEPTH"`
	EnableEarlyFinalization bool `json:"enable_early_finalization" env:"BOUNTY_ENABLE_EARLY_FINALIZATION"`
	QuiescenceDelaySeconds  int `json:"quiescence_delay_seconds" env:"BOUNTY_QUIESCENCE_DELAY_SECONDS"`
}

// PayoutConfig controls the consensus & payout engine (C5).
type PayoutConfig struct {
	RedistributionRatio float64 `json:"redistribution_ratio" env:"PAYOUT_REDISTRIBUTION_RATIO"`
	MaxEmissionRetries  int     `json:"max_emission_retries" env:"PAYOUT_MAX_EMISSION_RETRIES"`
}

// ReputationConfig controls the reputation engine (C6).
type ReputationConfig struct {
	MaxScore              float64       `json:"max_score" env:"REPUTATION_MAX_SCORE"`
	DecayFactor           float64       `json:"decay_factor" env:"REPUTATION_DECAY_FACTOR"`
	DecayPeriod           time.Duration `json:"decay_period" env:"REPUTATION_DECAY_PERIOD"`
	TargetResponseSeconds float64       `json:"target_response_seconds" env:"REPUTATION_TARGET_RESPONSE_SECONDS"`
	VolumeSaturation      float64       `json:"volume_saturation" env:"REPUTATION_VOLUME_SATURATION"`
}

// NotificationConfig controls the fire-and-forget event bus (§6.3).
type NotificationConfig struct {
	DSN     string `json:"dsn" env:"NOTIFICATION_DSN"`
	Enabled bool   `json:"enabled" env:"NOTIFICATION_ENABLED"`
}

// LedgerConfig controls the ledger collaborator (§6.2).
type LedgerConfig struct {
	Mode string `json:"mode" env:"LEDGER_MODE"` // "stub" or "logging"
}

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Logging      LoggingConfig      `json:"logging"`
	Tracing      TracingConfig      `json:"tracing"`
	Pipeline     PipelineConfig     `json:"pipeline"`
	Bounty       BountyConfig       `json:"bounty"`
	Payout       PayoutConfig       `json:"payout"`
	Reputation   ReputationConfig   `json:"reputation"`
	Notification NotificationConfig `json:"notification"`
	Ledger       LedgerConfig       `json:"ledger"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			ServiceName: "nexus-intel",
		},
		Pipeline: PipelineConfig{
			OverallDeadline:       30 * time.Second,
			RequireAllAnalyzers:   false,
			MaxConcurrentAnalyses: 64,
			WorkerPoolSize:        8,
			ResultCacheSize:       4096,
			ResultCacheTTL:        10 * time.Minute,
			ArtifactFetchRetries:  3,
		},
		Bounty: BountyConfig{
			SubmissionQueueDepth:    256,
			EnableEarlyFinalization: false,
			QuiescenceDelaySeconds:  30,
		},
		Payout: PayoutConfig{
			RedistributionRatio: 0.8,
			MaxEmissionRetries:  5,
		},
		Reputation: ReputationConfig{
			MaxScore:              1000,
			DecayFactor:           0.95,
			DecayPeriod:           30 * 24 * time.Hour,
			TargetResponseSeconds: 300,
			VolumeSaturation:      1000,
		},
		Notification: NotificationConfig{Enabled: false},
		Ledger:       LedgerConfig{Mode: "stub"},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	cfg.normalize()

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	cfg.normalize()
	return cfg, nil
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN to
// reduce setup friction.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

func (t *TracingConfig) normalize() {
	if t == nil {
		return
	}
	t.MergeAttributes(t.AttributesEnv)
}

// MergeAttributes merges comma-separated key=value pairs into ResourceAttributes.
func (t *TracingConfig) MergeAttributes(raw string) {
	if t == nil {
		return
	}
	pairs := parseAttributePairs(raw)
	if len(pairs) == 0 {
		return
	}
	if t.ResourceAttributes == nil {
		t.ResourceAttributes = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		if k == "" {
			continue
		}
		t.ResourceAttributes[k] = v
	}
}

func parseAttributePairs(raw string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			continue
		}
		val := ""
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}
		result[key] = val
	}
	return result
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	c.Tracing.normalize()
	if c.Payout.RedistributionRatio <= 0 {
		c.Payout.RedistributionRatio = 0.8
	}
	if c.Reputation.DecayFactor <= 0 {
		c.Reputation.DecayFactor = 0.95
	}
	if c.Reputation.MaxScore <= 0 {
		c.Reputation.MaxScore = 1000
	}
}
