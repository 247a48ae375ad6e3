package sandbox

import (
	"context"
	"log"
	"os"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if the daemon answers, otherwise the host.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 2 * time.Minute

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // custom image override
	CPU         string        // e.g. "2" or "1.5"
	Memory      string        // e.g. "1g", "512m"
	Network     bool          // allow network access inside the container
	CmdTimeout  time.Duration // default command timeout
}

// DefaultConfig returns the configuration from TASKPILOT_SANDBOX* variables.
func DefaultConfig() Config {
	cfg := Config{
		Mode:        ParseMode(os.Getenv("TASKPILOT_SANDBOX")),
		DockerImage: os.Getenv("TASKPILOT_DOCKER_IMAGE"),
		CPU:         getEnvOrDefault("TASKPILOT_DOCKER_CPU", "2"),
		Memory:      getEnvOrDefault("TASKPILOT_DOCKER_MEMORY", "1g"),
		Network:     os.Getenv("TASKPILOT_DOCKER_NETWORK") == "1",
		CmdTimeout:  defaultCmdTimeout,
	}
	if s := os.Getenv("TASKPILOT_SANDBOX_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.CmdTimeout = d
		} else {
			log.Printf("⚠️  Invalid TASKPILOT_SANDBOX_TIMEOUT %q, using %s", s, defaultCmdTimeout)
		}
	}
	return cfg
}

// ParseMode maps a mode string to a Mode, defaulting to host.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDocker:
		return ModeDocker
	case ModeAuto:
		return ModeAuto
	case ModeHost, "":
		return ModeHost
	default:
		log.Printf("⚠️  Unknown sandbox mode %q, using host", s)
		return ModeHost
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// NewRunner creates a runner for cfg.Mode. Docker and auto modes fall back
// to the host runner when the daemon is unreachable.
func NewRunner(ctx context.Context, cfg Config) Runner {
	switch cfg.Mode {
	case ModeDocker, ModeAuto:
		dockerRunner, err := NewDockerRunner(ctx, cfg)
		if err == nil {
			return dockerRunner
		}
		log.Printf("⚠️  Docker sandbox unavailable: %v. Falling back to host executor.", err)
		return NewHostRunner(cfg)
	default:
		log.Printf("⚠️  Using host executor (no sandboxing)")
		return NewHostRunner(cfg)
	}
}
