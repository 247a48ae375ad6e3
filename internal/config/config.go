package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	Provider   ProviderConfig   `toml:"provider"`
	Guardrails GuardrailsConfig `toml:"guardrails"`
	Goal       GoalConfig       `toml:"goal"`
	Sandbox    SandboxConfig    `toml:"sandbox"`
	Events     EventsConfig     `toml:"events"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// ProviderConfig selects the model provider.
type ProviderConfig struct {
	Name            string `toml:"name"` // anthropic, openai, deepseek, ...
	Model           string `toml:"model"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
}

// GuardrailsConfig are the budget ceilings. Zero means unlimited.
type GuardrailsConfig struct {
	MaxTurns              int     `toml:"max_turns"`
	MaxIterations         int     `toml:"max_iterations"`
	MaxTokens             int     `toml:"max_tokens"`
	MaxCostUSD            float64 `toml:"max_cost_usd"`
	InputPricePerMillion  float64 `toml:"input_price_per_million"`
	OutputPricePerMillion float64 `toml:"output_price_per_million"`
}

// GoalConfig configures goal-mode retries.
type GoalConfig struct {
	MaxAttempts int `toml:"max_attempts"`
}

// SandboxConfig selects how run_command executes.
type SandboxConfig struct {
	Mode    string `toml:"mode"` // host or docker
	Timeout string `toml:"timeout"`
}

// EventsConfig configures the persistent event store.
type EventsConfig struct {
	DBPath string `toml:"db_path"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{MaxOutputTokens: engine.DefaultMaxOutputTokens},
		Goal:     GoalConfig{MaxAttempts: 1},
		Sandbox:  SandboxConfig{Mode: "host", Timeout: "2m"},
	}
}

// ApplyEnvOverrides overlays TASKPILOT_* and provider variables on c.
// Malformed numeric values are reported and leave the field untouched.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("TASKPILOT_MODEL", &c.Provider.Model)
	setString("TASKPILOT_BASE_URL", &c.Provider.BaseURL)
	setString("TASKPILOT_SANDBOX", &c.Sandbox.Mode)
	setString("TASKPILOT_SANDBOX_TIMEOUT", &c.Sandbox.Timeout)
	setString("TASKPILOT_EVENTS_DB", &c.Events.DBPath)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	ints := map[string]*int{
		"TASKPILOT_MAX_TURNS":         &c.Guardrails.MaxTurns,
		"TASKPILOT_MAX_ITERATIONS":    &c.Guardrails.MaxIterations,
		"TASKPILOT_MAX_TOKENS":        &c.Guardrails.MaxTokens,
		"TASKPILOT_MAX_ATTEMPTS":      &c.Goal.MaxAttempts,
		"TASKPILOT_MAX_OUTPUT_TOKENS": &c.Provider.MaxOutputTokens,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	if v := os.Getenv("TASKPILOT_MAX_COST_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TASKPILOT_MAX_COST_USD=%q: %w", v, err)
		}
		c.Guardrails.MaxCostUSD = f
	}
	return nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	g := c.Guardrails
	if g.MaxTurns < 0 || g.MaxIterations < 0 || g.MaxTokens < 0 || g.MaxCostUSD < 0 {
		return fmt.Errorf("guardrails must not be negative")
	}
	if c.Goal.MaxAttempts < 0 {
		return fmt.Errorf("goal.max_attempts must not be negative")
	}
	switch c.Sandbox.Mode {
	case "", "host", "docker":
	default:
		return fmt.Errorf("sandbox.mode must be host or docker, got %q", c.Sandbox.Mode)
	}
	if c.Sandbox.Timeout != "" {
		if _, err := time.ParseDuration(c.Sandbox.Timeout); err != nil {
			return fmt.Errorf("sandbox.timeout: %w", err)
		}
	}
	return nil
}

// SandboxTimeout returns the parsed command timeout, or 0 when unset.
func (c *Config) SandboxTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Sandbox.Timeout)
	return d
}

// ExecutorConfig maps the file settings onto the engine configuration.
func (c *Config) ExecutorConfig(model string) engine.ExecutorConfig {
	ec := engine.DefaultExecutorConfig()
	if model != "" {
		ec.Model = model
	}
	if c.Provider.MaxOutputTokens > 0 {
		ec.ChatOptions.MaxOutputTokens = c.Provider.MaxOutputTokens
	}
	ec.Guardrails = engine.Guardrails{
		MaxTurns:      c.Guardrails.MaxTurns,
		MaxIterations: c.Guardrails.MaxIterations,
		MaxTokens:     c.Guardrails.MaxTokens,
		MaxCostUSD:    c.Guardrails.MaxCostUSD,
	}
	ec.Pricing = engine.Pricing{
		InputPerMillion:  c.Guardrails.InputPricePerMillion,
		OutputPerMillion: c.Guardrails.OutputPricePerMillion,
	}
	return ec
}
