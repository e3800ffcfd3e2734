// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	DefaultProvider string                    `toml:"default_provider"`
	Providers       map[string]ProviderConfig `toml:"providers"`
	Agent           AgentConfig               `toml:"agent"`
	UI              UIConfig                  `toml:"ui"`
	Database        DatabaseConfig            `toml:"database"`
	Listen          ListenConfig              `toml:"listen"`
}

// AgentConfig holds per-turn tool-loop and history settings shared by every
// agent in the tree.
type AgentConfig struct {
	SystemMessage   string `toml:"system_message"`
	MaxTokens       int    `toml:"max_tokens"`
	HistorySize     int    `toml:"history_size"`
	MaxToolTurns    int    `toml:"max_tool_turns"`
	MaxOutputSize   int    `toml:"max_output_size"`
	ThinkingLevel   string `toml:"thinking_level"` // none | low | medium | high
	ThinkingSummary bool   `toml:"thinking_summary"`
}

// HistorySizeOrDefault returns the configured history capacity, or 200 if unset.
func (a AgentConfig) HistorySizeOrDefault() int {
	if a.HistorySize <= 0 {
		return 200
	}
	return a.HistorySize
}

// MaxToolTurnsOrDefault returns the configured tool-loop ceiling, or 20 if unset.
func (a AgentConfig) MaxToolTurnsOrDefault() int {
	if a.MaxToolTurns <= 0 {
		return 20
	}
	return a.MaxToolTurns
}

// UIConfig holds user-interface settings.
type UIConfig struct {
	SyntaxTheme string `toml:"syntax_theme"`
}

// SyntaxThemeOrDefault returns the configured syntax theme, or "github-dark" if unset.
func (u UIConfig) SyntaxThemeOrDefault() string {
	if u.SyntaxTheme == "" {
		return "github-dark"
	}
	return u.SyntaxTheme
}

// DatabaseConfig holds the persistence collaborator's connection info. An
// empty Path disables persistence entirely.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ListenConfig configures an optional control-plane listener; unused by the
// core REPL but parsed so config files that set it stay forward-compatible.
type ListenConfig struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Kind        string  `toml:"kind"` // anthropic | openai | google
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Temperature float64 `toml:"temperature"`
	APIKeyEnv   string  `toml:"api_key_env"`
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be configured"))
	} else {
		for name, providerCfg := range c.Providers {
			errs = append(errs, validateProviderConfig(name, providerCfg)...)
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("default_provider=%q does not exist in providers", c.DefaultProvider))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateProviderConfig(name string, cfg ProviderConfig) []error {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint is required", name))
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("providers.%s.endpoint=%q is invalid: %v", name, cfg.Endpoint, err))
	}

	if cfg.Model == "" {
		errs = append(errs, fmt.Errorf("providers.%s.model is required", name))
	}

	if cfg.Temperature < 0.0 || cfg.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("providers.%s.temperature=%v must be between 0.0 and 2.0", name, cfg.Temperature))
	}

	switch cfg.Kind {
	case "", "anthropic", "openai", "google":
	default:
		errs = append(errs, fmt.Errorf("providers.%s.kind=%q is not one of anthropic|openai|google", name, cfg.Kind))
	}

	return errs
}

func validateEndpoint(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("missing scheme or host")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IKIGAI_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// DataDir returns the path to the ikigai data directory. IKIGAI_DATA_DIR
// overrides the default $HOME/.config/ikigai.
func DataDir() (string, error) {
	if v := os.Getenv("IKIGAI_DATA_DIR"); v != "" {
		return v, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(home, ".config", "ikigai"), nil
}

// ConfigDir returns IKIGAI_CONFIG_DIR when set, otherwise DataDir. cmd/ikigai
// does not call it: it reads config.toml from DataDir or the working directory.
func ConfigDir() (string, error) {
	if v := os.Getenv("IKIGAI_CONFIG_DIR"); v != "" {
		return v, nil
	}
	return DataDir()
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}
