package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsFromEnv(t *testing.T) {
	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 1000, cfg.Profiler.SampleSize)
	assert.Equal(t, 10, cfg.Profiler.TopValueCount)
	assert.Equal(t, 3, cfg.Profiler.MaxRefineAttempts)
	assert.Equal(t, int64(500000), cfg.Profiler.ExecutionRowCeiling)
	assert.InDelta(t, 0.9, cfg.Profiler.PatternMatchThreshold, 1e-9)
	assert.Equal(t, "openai", cfg.AI.Provider)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PROFILER_SAMPLE_SIZE", "250")
	t.Setenv("AI_PROVIDER", "anthropic")

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Profiler.SampleSize)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("AI_PROVIDER", "mystery")
	_, err := Load("test")
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidThreshold(t *testing.T) {
	t.Setenv("PROFILER_PATTERN_MATCH_THRESHOLD", "1.5")
	_, err := Load("test")
	assert.Error(t, err)
}

func TestDatabaseConfig_ConnString(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "svc", Password: "pw",
		Database: "profiler_engine", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/profiler_engine?sslmode=disable", d.ConnString())
}

func TestProfilerConfig_EffectiveWorkerConcurrency(t *testing.T) {
	p := ProfilerConfig{WorkerConcurrency: 4}
	assert.Equal(t, 4, p.EffectiveWorkerConcurrency())

	p.WorkerConcurrency = 0
	assert.Greater(t, p.EffectiveWorkerConcurrency(), 0)
}
