package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// Dir is the directory name for per-project configuration
	Dir = ".taskpilot"
	// ConfigFile is the name of the project configuration file
	ConfigFile = "config.toml"
	// RulesFile is the name of the custom rules file
	RulesFile = "rules"
)

// ProjectConfig holds per-project defaults. Command-line flags take precedence.
type ProjectConfig struct {
	// CriteriaCommand must exit 0 for a task in this repository to succeed.
	CriteriaCommand string   `toml:"criteria_command,omitempty"`
	CriteriaFiles   []string `toml:"criteria_files,omitempty"`
	MaxAttempts     int      `toml:"max_attempts,omitempty"`
	Sandbox         string   `toml:"sandbox,omitempty"`
}

func configPath(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, ConfigFile)
}

func rulesPath(repoRoot string) string {
	return filepath.Join(repoRoot, Dir, RulesFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(repoRoot string) bool {
	_, err := os.Stat(configPath(repoRoot))
	return err == nil
}

// LoadConfig reads the project configuration from disk.
// Returns nil and no error if the config file does not exist.
func LoadConfig(repoRoot string) (*ProjectConfig, error) {
	var cfg ProjectConfig
	if _, err := toml.DecodeFile(configPath(repoRoot), &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("project config: max_attempts must not be negative")
	}
	return &cfg, nil
}

// SaveConfig writes the project configuration to disk.
// Creates the .taskpilot directory if it doesn't exist.
func SaveConfig(repoRoot string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(filepath.Join(repoRoot, Dir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	f, err := os.Create(configPath(repoRoot))
	if err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode project config: %w", err)
	}
	return nil
}

// LoadRules reads custom agent rules from the .taskpilot/rules file.
// Returns empty string and no error if the file does not exist.
func LoadRules(repoRoot string) (string, error) {
	data, err := os.ReadFile(rulesPath(repoRoot))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return string(data), nil
}
