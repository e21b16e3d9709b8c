// Package config loads and validates the YAML configuration document.
//
// The file has one section per concern: local_ai (provider URLs, model ids,
// context sizes), api (endpoint URLs, secrets), settings (feature flags),
// server, concurrency, parsing, and rate_limits. Environment references use
// the ${NAME} placeholder form and are substituted before parsing. Values
// omitted from the file fall back to the defaults in defaults.go.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	LocalAI     LocalAIConfig     `yaml:"local_ai"`
	API         APIConfig         `yaml:"api"`
	Settings    SettingsConfig    `yaml:"settings"`
	Server      ServerConfig      `yaml:"server"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Parsing     ParsingConfig     `yaml:"parsing"`
	RateLimits  RateLimitConfig   `yaml:"rate_limits"`
}

// Initialize loads, merges, and validates configuration from path.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand ${NAME} environment placeholders
//  3. Parse into Config
//  4. Merge file values over built-in defaults
//  5. Validate
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_file", path)
	log.Info("Initializing configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"default_model", cfg.LocalAI.DefaultModel,
		"reason_model", cfg.LocalAI.ReasonModel,
		"use_local_llm", cfg.Settings.LocalLLMEnabled(),
		"use_hosted_parser", cfg.Settings.UseHostedParser,
		"with_planning", cfg.Settings.PlanningEnabled())

	return cfg, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	// File values override defaults; unset fields keep the default.
	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	return cfg, nil
}
