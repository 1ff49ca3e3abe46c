package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the profiler engine. Values come from a
// YAML file (config.yaml) with environment variable overrides; environment
// always wins. Secrets (passwords, API keys) must only come from environment
// variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // set at load time, not from config

	// Engine store (PostgreSQL) holding rule records and metric facts.
	Database DatabaseConfig `yaml:"database"`

	// Target database being profiled.
	Target TargetConfig `yaml:"target"`

	// AI collaborator configuration for rule generation and repair.
	AI AIConfig `yaml:"ai"`

	// Profiling and rule-execution tuning.
	Profiler ProfilerConfig `yaml:"profiler"`
}

// DatabaseConfig holds engine store (PostgreSQL) configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"profiler"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"profiler_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnString builds a pgx-compatible connection string.
func (d *DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// TargetConfig identifies the database being profiled. Type selects the
// registered adapter ("postgres" or "sqlserver").
type TargetConfig struct {
	Type     string `yaml:"type" env:"TARGET_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"TARGET_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"TARGET_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"TARGET_USER"`
	Password string `yaml:"-" env:"TARGET_PASSWORD"` // secret - not in YAML
	Database string `yaml:"database" env:"TARGET_DATABASE"`
	SSLMode  string `yaml:"ssl_mode" env:"TARGET_SSLMODE" env-default:"require"`
}

// AdapterConfig converts the target settings into the generic map the
// adapter registry consumes.
func (t *TargetConfig) AdapterConfig() map[string]any {
	return map[string]any{
		"host":     t.Host,
		"port":     t.Port,
		"user":     t.User,
		"password": t.Password,
		"database": t.Database,
		"ssl_mode": t.SSLMode,
	}
}

// AIConfig holds the AI collaborator provider settings. Provider is one of
// "openai" (or any OpenAI-compatible endpoint) or "anthropic". The key is a
// secret and only comes from the environment.
type AIConfig struct {
	Provider    string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	BaseURL     string  `yaml:"base_url" env:"AI_BASE_URL" env-default:""`
	Model       string  `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"AI_API_KEY"` // secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.1"`
	TimeoutSecs int     `yaml:"timeout_secs" env:"AI_TIMEOUT_SECS" env-default:"60"`
}

// ProfilerConfig holds tuning knobs for profiling and rule execution.
type ProfilerConfig struct {
	// WorkerConcurrency bounds the column-profiling worker pool.
	// 0 means proportional to available cores.
	WorkerConcurrency int `yaml:"worker_concurrency" env:"PROFILER_WORKER_CONCURRENCY" env-default:"0"`

	// SampleSize is how many rows are sampled per column for value statistics.
	SampleSize int `yaml:"sample_size" env:"PROFILER_SAMPLE_SIZE" env-default:"1000"`

	// TopValueCount bounds the per-column top-values list.
	TopValueCount int `yaml:"top_value_count" env:"PROFILER_TOP_VALUE_COUNT" env-default:"10"`

	// HistogramBuckets is the fixed bucket count for numeric histograms.
	HistogramBuckets int `yaml:"histogram_buckets" env:"PROFILER_HISTOGRAM_BUCKETS" env-default:"10"`

	// FrequencyMultiple flags a value as suspicious when its frequency
	// exceeds this multiple of the expected uniform frequency.
	FrequencyMultiple float64 `yaml:"frequency_multiple" env:"PROFILER_FREQUENCY_MULTIPLE" env-default:"10"`

	// PatternMatchThreshold is the minimum regex match rate for
	// pattern-validated subtypes before a violation is raised.
	PatternMatchThreshold float64 `yaml:"pattern_match_threshold" env:"PROFILER_PATTERN_MATCH_THRESHOLD" env-default:"0.9"`

	// DateGapDays is the minimum run of inactive days reported as a gap.
	DateGapDays int `yaml:"date_gap_days" env:"PROFILER_DATE_GAP_DAYS" env-default:"7"`

	// OverlapSampleSize is the reference sample size for value-overlap checks.
	OverlapSampleSize int `yaml:"overlap_sample_size" env:"PROFILER_OVERLAP_SAMPLE_SIZE" env-default:"1000"`

	// OverlapThreshold is the minimum overlap percentage for a statistical
	// relation to be emitted as evidence.
	OverlapThreshold float64 `yaml:"overlap_threshold" env:"PROFILER_OVERLAP_THRESHOLD" env-default:"0.8"`

	// QueryTimeoutSecs bounds every metadata/profiling query.
	QueryTimeoutSecs int `yaml:"query_timeout_secs" env:"PROFILER_QUERY_TIMEOUT_SECS" env-default:"30"`

	// MaxRefineAttempts bounds the AI repair loop per rule candidate.
	MaxRefineAttempts int `yaml:"max_refine_attempts" env:"PROFILER_MAX_REFINE_ATTEMPTS" env-default:"3"`

	// ExecutionRowCeiling downgrades rule execution to a bounded random
	// sample above this row count. The result is flagged as sampled.
	ExecutionRowCeiling int64 `yaml:"execution_row_ceiling" env:"PROFILER_EXECUTION_ROW_CEILING" env-default:"500000"`

	// ExecutionSampleSize is the sample size used above the row ceiling.
	ExecutionSampleSize int64 `yaml:"execution_sample_size" env:"PROFILER_EXECUTION_SAMPLE_SIZE" env-default:"100000"`
}

// EffectiveWorkerConcurrency resolves WorkerConcurrency, defaulting to
// twice the core count.
func (p *ProfilerConfig) EffectiveWorkerConcurrency() int {
	if p.WorkerConcurrency > 0 {
		return p.WorkerConcurrency
	}
	return runtime.NumCPU() * 2
}

// Load reads configuration from config.yaml with environment overrides. The
// version parameter is injected at build time. When config.yaml is absent,
// configuration comes from environment variables and defaults alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Profiler.SampleSize <= 0 {
		return fmt.Errorf("profiler sample_size must be positive")
	}
	if c.Profiler.MaxRefineAttempts < 0 {
		return fmt.Errorf("profiler max_refine_attempts must not be negative")
	}
	if c.Profiler.PatternMatchThreshold < 0 || c.Profiler.PatternMatchThreshold > 1 {
		return fmt.Errorf("profiler pattern_match_threshold must be in [0,1]")
	}
	if c.Profiler.ExecutionRowCeiling > 0 && c.Profiler.ExecutionSampleSize <= 0 {
		return fmt.Errorf("profiler execution_sample_size must be positive when a row ceiling is set")
	}
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown AI provider %q", c.AI.Provider)
	}
	return nil
}
