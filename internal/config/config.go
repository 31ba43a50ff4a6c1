// Package config provides configuration loading for workassistd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WORKASSIST_* prefix)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/ledgerline/workassist/internal/logging"
)

// envPrefix is stripped from environment variables before mapping them
// to config keys: WORKASSIST_LLM_MODEL -> llm.model.
const envPrefix = "WORKASSIST_"

// Config is the root configuration for the daemon.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Store      StoreConfig      `koanf:"store"`
	Index      IndexConfig      `koanf:"index"`
	Assistant  AssistantConfig  `koanf:"assistant"`
	Logging    logging.Config   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LLMConfig holds language-model client settings.
type LLMConfig struct {
	// Provider selects the completion backend: "ollama" or "openai".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
	// Timeout bounds every completion call.
	Timeout time.Duration `koanf:"timeout"`
}

// EmbeddingsConfig holds embedding service settings.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig holds the relational store settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `koanf:"path"`
}

// IndexConfig holds the vector index settings.
type IndexConfig struct {
	// Path is the directory for chromem persistence.
	Path string `koanf:"path"`
	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// AssistantConfig holds the core pipeline tunables.
type AssistantConfig struct {
	// DeliverableWarningDays is the "due soon" window for deliverable queries.
	DeliverableWarningDays int `koanf:"deliverable_warning_days"`
	// SearchResults is the default result-set size for semantic searches.
	SearchResults int `koanf:"search_results"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "phi3",
			Timeout:  60 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "nomic-embed-text",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "workassist.db",
		},
		Index: IndexConfig{
			Path: "./chroma_db",
		},
		Assistant: AssistantConfig{
			DeliverableWarningDays: 7,
			SearchResults:          5,
		},
		Logging: logging.NewDefaultConfig(),
	}
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables. An empty configPath skips the file layer; a
// missing file at an explicit path is an error.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Environment variables override the file. The config tree is two
	// levels deep, so only the first underscore separates the section
	// from the key: WORKASSIST_LLM_API_KEY -> llm.api_key.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "openai" {
		return fmt.Errorf("llm.provider must be %q or %q, got %q", "ollama", "openai", c.LLM.Provider)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if c.Assistant.DeliverableWarningDays <= 0 {
		return fmt.Errorf("assistant.deliverable_warning_days must be positive")
	}
	if c.Assistant.SearchResults <= 0 {
		return fmt.Errorf("assistant.search_results must be positive")
	}
	return nil
}
