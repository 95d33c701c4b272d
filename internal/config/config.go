// Package config loads and validates the daemon configuration from TOML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// LLM contains the model connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Stream         bool   `toml:"stream"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
}

// Workflow contains worker pool and retention settings.
type Workflow struct {
	WorkerSlots       int `toml:"worker_slots"`
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`
	KeepMax           int `toml:"keep_max"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for cardforge.
type Config struct {
	Paths    Paths    `toml:"paths"`
	LLM      LLM      `toml:"llm"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cardforge/config.toml")
}

// Default returns a configuration populated with every default value.
func Default() *Config {
	return &Config{
		Paths: Paths{
			DataDir: "~/.local/share/cardforge",
			LogDir:  "~/.local/share/cardforge/logs",
			APIBind: "127.0.0.1:7322",
		},
		LLM: LLM{
			BaseURL:        "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			Stream:         true,
			TimeoutSeconds: 120,
			Retries:        3,
		},
		Workflow: Workflow{
			WorkerSlots:       2,
			JobTimeoutSeconds: 300,
			KeepMax:           10,
		},
		Logging: Logging{
			Format:        "console",
			Level:         "info",
			RetentionDays: 7,
		},
	}
}

// Load locates, parses, and validates a configuration file. A missing file at
// the default location yields the defaults; an explicit path must exist.
func Load(path string) (*Config, string, error) {
	resolved, explicit, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			if err := cfg.normalize(); err != nil {
				return nil, "", err
			}
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
		return nil, "", fmt.Errorf("config: read %s: %w", resolved, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("config: parse %s: %w", resolved, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return "", true, err
		}
		return expanded, true, nil
	}
	fallback, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	return fallback, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Workflow.KeepMax <= 0 {
		c.Workflow.KeepMax = Default().Workflow.KeepMax
	}
	if c.Workflow.WorkerSlots <= 0 {
		c.Workflow.WorkerSlots = Default().Workflow.WorkerSlots
	}
	if c.Workflow.JobTimeoutSeconds <= 0 {
		c.Workflow.JobTimeoutSeconds = Default().Workflow.JobTimeoutSeconds
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = Default().LLM.TimeoutSeconds
	}
	if c.LLM.Retries <= 0 {
		c.LLM.Retries = Default().LLM.Retries
	}
	return nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var problems []string
	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if c.Paths.APIBind == "" {
		problems = append(problems, "paths.api_bind must be set")
	}
	if c.LLM.BaseURL == "" {
		problems = append(problems, "llm.base_url must be set")
	}
	if c.LLM.Model == "" {
		problems = append(problems, "llm.model must be set")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to path, refusing to overwrite.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config: %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("config: write sample: %w", err)
	}
	return expanded, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("config: resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
