// Package config loads pzl runtime settings from TOML files, with
// project-local overrides layered over the user-level file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/puzzle-agent/pzl/internal/api"
)

const (
	defaultServerURL = "http://localhost:8000"

	defaultMainAgentModel       = "qwq-plus-latest"
	defaultMainAgentProvider    = "qwen"
	defaultMainAgentMaxRetries  = 3
	defaultExtractorModel       = "qwen-turbo"
	defaultExtractorProvider    = "qwen"
	defaultSearcherModel        = "qwen-plus-latest"
	defaultSearcherProvider     = "qwen"
	defaultSearcherSearchTokens = 12000

	defaultStallThreshold    = 180 * time.Second
	defaultStallPollInterval = 10 * time.Second
)

// AgentConfig selects a model for one pipeline agent.
type AgentConfig struct {
	ModelName     string
	ModelProvider string
	MaxRetries    int
}

// SearcherConfig selects a model and tooling for the search agent.
type SearcherConfig struct {
	ModelName       string
	ModelProvider   string
	MaxSearchTokens int
	SelectedTools   []string
}

// Config stores runtime settings loaded from TOML files.
type Config struct {
	ServerURL         string
	MainAgent         AgentConfig
	MetadataExtractor AgentConfig
	Searcher          SearcherConfig
	StallThreshold    time.Duration
	StallPollInterval time.Duration
}

type fileAgentConfig struct {
	ModelName     *string `toml:"model_name"`
	ModelProvider *string `toml:"model_provider"`
	MaxRetries    *int    `toml:"max_retries"`
}

type fileSearcherConfig struct {
	ModelName       *string   `toml:"model_name"`
	ModelProvider   *string   `toml:"model_provider"`
	MaxSearchTokens *int      `toml:"max_search_tokens"`
	SelectedTools   *[]string `toml:"selected_tools"`
}

type fileConfig struct {
	ServerURL         *string             `toml:"server_url"`
	MainAgent         *fileAgentConfig    `toml:"main_agent"`
	MetadataExtractor *fileAgentConfig    `toml:"metadata_extractor"`
	Searcher          *fileSearcherConfig `toml:"searcher"`
	StallThreshold    *string             `toml:"stall_threshold"`
	StallPollInterval *string             `toml:"stall_poll_interval"`
}

// Load reads config from ~/.pzl/config.toml and overlays a project-local
// .pzl/config.toml.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".pzl", "config.toml"),
		filepath.Join(workingDir, ".pzl", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LaunchConfig converts the loaded settings into the launch request shape.
func (c *Config) LaunchConfig() api.LaunchConfig {
	return api.LaunchConfig{
		MainAgent: api.AgentModelConfig{
			ModelName:     c.MainAgent.ModelName,
			ModelProvider: c.MainAgent.ModelProvider,
			MaxRetries:    c.MainAgent.MaxRetries,
		},
		MetadataExtractor: api.AgentModelConfig{
			ModelName:     c.MetadataExtractor.ModelName,
			ModelProvider: c.MetadataExtractor.ModelProvider,
		},
		Searcher: api.SearcherModelConfig{
			ModelName:       c.Searcher.ModelName,
			ModelProvider:   c.Searcher.ModelProvider,
			MaxSearchTokens: c.Searcher.MaxSearchTokens,
			SelectedTools:   append([]string(nil), c.Searcher.SelectedTools...),
		},
	}
}

func defaults() Config {
	return Config{
		ServerURL: defaultServerURL,
		MainAgent: AgentConfig{
			ModelName:     defaultMainAgentModel,
			ModelProvider: defaultMainAgentProvider,
			MaxRetries:    defaultMainAgentMaxRetries,
		},
		MetadataExtractor: AgentConfig{
			ModelName:     defaultExtractorModel,
			ModelProvider: defaultExtractorProvider,
		},
		Searcher: SearcherConfig{
			ModelName:       defaultSearcherModel,
			ModelProvider:   defaultSearcherProvider,
			MaxSearchTokens: defaultSearcherSearchTokens,
			SelectedTools:   []string{},
		},
		StallThreshold:    defaultStallThreshold,
		StallPollInterval: defaultStallPollInterval,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if decoded.ServerURL != nil {
		cfg.ServerURL = strings.TrimSpace(*decoded.ServerURL)
	}
	applyAgentOverrides(&cfg.MainAgent, decoded.MainAgent)
	applyAgentOverrides(&cfg.MetadataExtractor, decoded.MetadataExtractor)
	applySearcherOverrides(&cfg.Searcher, decoded.Searcher)

	if decoded.StallThreshold != nil {
		value, err := parseDuration(*decoded.StallThreshold, "stall_threshold", path)
		if err != nil {
			return err
		}
		cfg.StallThreshold = value
	}
	if decoded.StallPollInterval != nil {
		value, err := parseDuration(*decoded.StallPollInterval, "stall_poll_interval", path)
		if err != nil {
			return err
		}
		cfg.StallPollInterval = value
	}

	return nil
}

func applyAgentOverrides(target *AgentConfig, decoded *fileAgentConfig) {
	if decoded == nil {
		return
	}
	if decoded.ModelName != nil {
		target.ModelName = strings.TrimSpace(*decoded.ModelName)
	}
	if decoded.ModelProvider != nil {
		target.ModelProvider = strings.TrimSpace(*decoded.ModelProvider)
	}
	if decoded.MaxRetries != nil {
		target.MaxRetries = *decoded.MaxRetries
	}
}

func applySearcherOverrides(target *SearcherConfig, decoded *fileSearcherConfig) {
	if decoded == nil {
		return
	}
	if decoded.ModelName != nil {
		target.ModelName = strings.TrimSpace(*decoded.ModelName)
	}
	if decoded.ModelProvider != nil {
		target.ModelProvider = strings.TrimSpace(*decoded.ModelProvider)
	}
	if decoded.MaxSearchTokens != nil {
		target.MaxSearchTokens = *decoded.MaxSearchTokens
	}
	if decoded.SelectedTools != nil {
		target.SelectedTools = append([]string(nil), (*decoded.SelectedTools)...)
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server_url must not be empty")
	}
	if c.MainAgent.MaxRetries < 0 {
		return errors.New("main_agent.max_retries must not be negative")
	}
	if c.Searcher.MaxSearchTokens <= 0 {
		return errors.New("searcher.max_search_tokens must be positive")
	}
	if c.StallThreshold <= 0 {
		return errors.New("stall_threshold must be positive")
	}
	if c.StallPollInterval <= 0 {
		return errors.New("stall_poll_interval must be positive")
	}
	if c.StallPollInterval > c.StallThreshold {
		return errors.New("stall_poll_interval must not exceed stall_threshold")
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}
