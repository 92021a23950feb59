package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds connection settings for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
}

// OllamaConfig holds connection settings for an Ollama host.
type OllamaConfig struct {
	URL         string  `yaml:"url" validate:"omitempty,url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type" validate:"oneof=tfidf openai ollama"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// GeneratorConfig selects and configures the completion model.
type GeneratorConfig struct {
	Type   string        `yaml:"type" validate:"oneof=ollama openai"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxSize           int      `yaml:"max_size" validate:"gt=0"`
	Overlap           int      `yaml:"overlap" validate:"gte=0,ltfield=MaxSize"`
	MergeTriggers     []string `yaml:"merge_triggers"`
	MergeWhenContains string   `yaml:"merge_when_contains"`
}

// ShortcutConfig is one phrase-triggered direct answer rule.
type ShortcutConfig struct {
	Phrase  string   `yaml:"phrase" validate:"required"`
	Markers []string `yaml:"markers" validate:"min=1"`
	Prefix  string   `yaml:"prefix"`
}

// RetrieverConfig configures question routing and semantic search.
type RetrieverConfig struct {
	TopK             int              `yaml:"top_k" validate:"gt=0"`
	MaxContextTokens int              `yaml:"max_context_tokens" validate:"gte=0"`
	Shortcuts        []ShortcutConfig `yaml:"shortcuts" validate:"dive"`
}

// PipelineConfig bounds stage execution.
type PipelineConfig struct {
	StageTimeoutSecs int    `yaml:"stage_timeout_secs" validate:"gt=0"`
	MaxAttempts      int    `yaml:"max_attempts" validate:"gt=0,lte=10"`
	BaseBackoffMs    int    `yaml:"base_backoff_ms" validate:"gte=0"`
	Parallel         bool   `yaml:"parallel"`
	DefaultPersona   string `yaml:"default_persona"`
}

// RedisConfig contains connection details for the completion cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	TTLSecs  int    `yaml:"ttl_secs" validate:"gte=0"`
}

// CacheConfig selects the completion cache backend.
type CacheConfig struct {
	Type  string       `yaml:"type" validate:"oneof=none memory redis"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxUploadMB int      `yaml:"max_upload_mb" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// SummarizerConfig configures the Key Sentences summary of the context miner.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences" validate:"gt=0"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// StageTimeout is the per-call deadline for collaborator invocations.
func (c *AppConfig) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSecs) * time.Second
}

func (c *AppConfig) BaseBackoff() time.Duration {
	return time.Duration(c.Pipeline.BaseBackoffMs) * time.Millisecond
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints on cfg.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadDefault tries ./askdocs.yaml first, then ~/.config/askdocs/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "askdocs.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "askdocs", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

// DefaultShortcuts answers "whose resume is this" from the SUMMARY section.
func DefaultShortcuts() []ShortcutConfig {
	return []ShortcutConfig{{
		Phrase:  "whose resume is this",
		Markers: []string{"SUMMARY", "Aspiring LLM"},
		Prefix:  "This is the resume of ",
	}}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.MaxSize == 0 {
		cfg.Chunker.MaxSize = 10000
	}
	if cfg.Chunker.Overlap == 0 && cfg.Chunker.MaxSize > 1000 {
		cfg.Chunker.Overlap = 1000
	}
	if cfg.Chunker.MergeTriggers == nil {
		cfg.Chunker.MergeTriggers = []string{"Definition", "Importance", "Objectives"}
		if cfg.Chunker.MergeWhenContains == "" {
			cfg.Chunker.MergeWhenContains = "Fiscal Policy"
		}
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text")
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.Type == "ollama" {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		ollamaDefaults(cfg.Generator.Ollama, "gemma:2b")
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	}

	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Retriever.Shortcuts == nil {
		cfg.Retriever.Shortcuts = DefaultShortcuts()
	}

	if cfg.Pipeline.StageTimeoutSecs == 0 {
		cfg.Pipeline.StageTimeoutSecs = 120
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.BaseBackoffMs == 0 {
		cfg.Pipeline.BaseBackoffMs = 200
	}
	if cfg.Pipeline.DefaultPersona == "" {
		cfg.Pipeline.DefaultPersona = "HR"
	}

	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "none"
	}
	if cfg.Cache.Type == "redis" {
		if cfg.Cache.Redis == nil {
			cfg.Cache.Redis = &RedisConfig{}
		}
		if cfg.Cache.Redis.Addr == "" {
			cfg.Cache.Redis.Addr = "localhost:6379"
		}
		if cfg.Cache.Redis.TTLSecs == 0 {
			cfg.Cache.Redis.TTLSecs = 86400
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}

func openAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

func ollamaDefaults(c *OllamaConfig, model string) {
	if c.URL == "" {
		c.URL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 120
	}
}
