package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`

	// Sync policy. Zero values fall back to the defaults below.
	PageSize          int `toml:"page_size"`
	PinLimit          int `toml:"pin_limit"`
	RetryBudget       int `toml:"retry_budget"`
	BackoffBaseMs     int `toml:"backoff_base_ms"`
	DispatchTimeoutMs int `toml:"dispatch_timeout_ms"`
}

// Default returns the built-in policy values.
func Default() *Config {
	return &Config{
		PageSize:          50,
		PinLimit:          3,
		RetryBudget:       5,
		BackoffBaseMs:     500,
		DispatchTimeoutMs: 10000,
	}
}

// Load reads config from the given path and fills unset policy fields
// with defaults. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to the
// built-in defaults when the file does not exist yet. A present but
// unreadable or malformed file is still an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PinLimit <= 0 {
		c.PinLimit = d.PinLimit
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = d.RetryBudget
	}
	if c.BackoffBaseMs <= 0 {
		c.BackoffBaseMs = d.BackoffBaseMs
	}
	if c.DispatchTimeoutMs <= 0 {
		c.DispatchTimeoutMs = d.DispatchTimeoutMs
	}
}
