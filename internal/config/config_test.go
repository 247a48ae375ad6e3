package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_PROVIDER", "TASKPILOT_MODEL", "TASKPILOT_BASE_URL", "TASKPILOT_SANDBOX",
		"TASKPILOT_SANDBOX_TIMEOUT", "TASKPILOT_EVENTS_DB", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"TASKPILOT_MAX_TURNS", "TASKPILOT_MAX_ITERATIONS", "TASKPILOT_MAX_TOKENS",
		"TASKPILOT_MAX_ATTEMPTS", "TASKPILOT_MAX_OUTPUT_TOKENS", "TASKPILOT_MAX_COST_USD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	m := NewManagerAt(t.TempDir())
	assert.False(t, m.Exists())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	m := NewManagerAt(filepath.Join(t.TempDir(), "nested"))
	cfg := Default()
	cfg.Provider.Name = "openai"
	cfg.Guardrails.MaxCostUSD = 2.5
	cfg.Sandbox.Mode = "docker"
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	info, err := os.Stat(m.GetConfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "groq")
	t.Setenv("TASKPILOT_MAX_TURNS", "40")
	t.Setenv("TASKPILOT_MAX_COST_USD", "1.25")
	t.Setenv("TASKPILOT_SANDBOX_TIMEOUT", "30s")

	cfg, err := NewManagerAt(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, "groq", cfg.Provider.Name)
	assert.Equal(t, 40, cfg.Guardrails.MaxTurns)
	assert.InDelta(t, 1.25, cfg.Guardrails.MaxCostUSD, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.SandboxTimeout())

	t.Setenv("TASKPILOT_MAX_TURNS", "many")
	_, err = NewManagerAt(t.TempDir()).Load()
	assert.ErrorContains(t, err, "TASKPILOT_MAX_TURNS")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	m := NewManagerAt(dir)
	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("[sandbox]\nmode = \"vm\"\n"), 0600))
	_, err := m.Load()
	assert.ErrorContains(t, err, "sandbox.mode")

	require.NoError(t, os.WriteFile(m.GetConfigPath(), []byte("not = [toml"), 0600))
	_, err = m.Load()
	assert.ErrorContains(t, err, "decode")
}

func TestExecutorConfigMapping(t *testing.T) {
	cfg := Default()
	cfg.Guardrails = GuardrailsConfig{MaxTurns: 7, MaxCostUSD: 3, InputPricePerMillion: 3, OutputPricePerMillion: 15}
	cfg.Provider.MaxOutputTokens = 1024

	ec := cfg.ExecutorConfig("gpt-4o")
	assert.Equal(t, "gpt-4o", ec.Model)
	assert.Equal(t, 7, ec.Guardrails.MaxTurns)
	assert.InDelta(t, 3.0, ec.Guardrails.MaxCostUSD, 1e-9)
	assert.InDelta(t, 15.0, ec.Pricing.OutputPerMillion, 1e-9)
	assert.Equal(t, 1024, ec.ChatOptions.MaxOutputTokens)
}
