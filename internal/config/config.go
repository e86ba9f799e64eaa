// Package config provides configuration management for PersonaForge.
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and environment variables with the PERSONAFORGE_
// prefix.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the PersonaForge backend.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // default: 127.0.0.1
	Port int    `yaml:"port"` // default: 8787
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // sqlite data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // connection string when engine is postgres
}

// LLMConfig contains generation and embedding backend configuration.
type LLMConfig struct {
	Provider       string `yaml:"provider"`         // ollama or openai (default: ollama)
	OllamaURL      string `yaml:"ollama_url"`       // default: http://localhost:11434
	Model          string `yaml:"model"`            // completion model (default: llama3)
	EmbeddingModel string `yaml:"embedding_model"`  // default: nomic-embed-text
	OpenAIAPIKey   string `yaml:"openai_api_key"`   // required when provider is openai
	OpenAIBaseURL  string `yaml:"openai_base_url"`  // override for OpenAI-compatible hosts (e.g. Groq)
	TimeoutSeconds int    `yaml:"timeout_seconds"`  // per-call timeout (default: 120)
}

// GenerationConfig contains the generation pipeline parameters.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`      // sampling randomness, "creativity" (default: 0.7)
	TopP            float64 `yaml:"top_p"`            // nucleus sampling, "realism" (default: 0.9)
	MaxTokens       int     `yaml:"max_tokens"`       // response cap (default: 7000)
	TopK            int     `yaml:"top_k"`            // chunks retrieved per generation (default: 5)
	ChunkSize       int     `yaml:"chunk_size"`       // ingest chunk size in runes (default: 700)
	ChunkOverlap    int     `yaml:"chunk_overlap"`    // overlap between chunks (default: 100)
	MemoryMaxTurns  int     `yaml:"memory_max_turns"` // conversation memory entries kept (default: 10)
	MemoryMaxChars  int     `yaml:"memory_max_chars"` // conversation memory size budget (default: 8000)
	DedupeRetrieved bool    `yaml:"dedupe_retrieved"` // drop retrieved chunks already selected (default: true)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	Mode     string `yaml:"mode"`      // development or production (default: development)
	APIToken string `yaml:"api_token"` // bearer token required in production mode
}

// Load builds the configuration from defaults, the optional YAML file named
// by PERSONAFORGE_CONFIG, and PERSONAFORGE_* environment variables.
func Load() (*Config, error) {
	return LoadFromFile(os.Getenv("PERSONAFORGE_CONFIG"))
}

// LoadFromFile is Load with an explicit YAML path. An empty path skips the
// file layer; a named file that does not exist is an error.
func LoadFromFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that individual defaults can't.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires PERSONAFORGE_POSTGRES_DSN")
	}

	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "openai" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("config: openai provider requires PERSONAFORGE_OPENAI_API_KEY")
	}

	if c.Security.Mode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production mode requires PERSONAFORGE_API_TOKEN")
	}

	if c.Generation.ChunkOverlap >= c.Generation.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Generation.ChunkOverlap, c.Generation.ChunkSize)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			Model:          "llama3",
			EmbeddingModel: "nomic-embed-text",
			TimeoutSeconds: 120,
		},
		Generation: GenerationConfig{
			Temperature:     0.7,
			TopP:            0.9,
			MaxTokens:       7000,
			TopK:            5,
			ChunkSize:       700,
			ChunkOverlap:    100,
			MemoryMaxTurns:  10,
			MemoryMaxChars:  8000,
			DedupeRetrieved: true,
		},
		Security: SecurityConfig{
			Mode: "development",
		},
	}
}

// applyEnv overlays PERSONAFORGE_* environment variables. Only variables
// that are actually set override the current value.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "PERSONAFORGE_HOST")
	setInt(&cfg.Server.Port, "PERSONAFORGE_PORT")

	setString(&cfg.Storage.Engine, "PERSONAFORGE_STORAGE_ENGINE")
	setString(&cfg.Storage.DataPath, "PERSONAFORGE_DATA_PATH")
	setString(&cfg.Storage.PostgresDSN, "PERSONAFORGE_POSTGRES_DSN")

	setString(&cfg.LLM.Provider, "PERSONAFORGE_LLM_PROVIDER")
	setString(&cfg.LLM.OllamaURL, "PERSONAFORGE_OLLAMA_URL")
	setString(&cfg.LLM.Model, "PERSONAFORGE_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "PERSONAFORGE_EMBEDDING_MODEL")
	setString(&cfg.LLM.OpenAIAPIKey, "PERSONAFORGE_OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIBaseURL, "PERSONAFORGE_OPENAI_BASE_URL")
	setInt(&cfg.LLM.TimeoutSeconds, "PERSONAFORGE_LLM_TIMEOUT_SECONDS")

	setFloat(&cfg.Generation.Temperature, "PERSONAFORGE_TEMPERATURE")
	setFloat(&cfg.Generation.TopP, "PERSONAFORGE_TOP_P")
	setInt(&cfg.Generation.MaxTokens, "PERSONAFORGE_MAX_TOKENS")
	setInt(&cfg.Generation.TopK, "PERSONAFORGE_TOP_K")
	setInt(&cfg.Generation.ChunkSize, "PERSONAFORGE_CHUNK_SIZE")
	setInt(&cfg.Generation.ChunkOverlap, "PERSONAFORGE_CHUNK_OVERLAP")
	setInt(&cfg.Generation.MemoryMaxTurns, "PERSONAFORGE_MEMORY_MAX_TURNS")
	setInt(&cfg.Generation.MemoryMaxChars, "PERSONAFORGE_MEMORY_MAX_CHARS")
	setBool(&cfg.Generation.DedupeRetrieved, "PERSONAFORGE_DEDUPE_RETRIEVED")

	setString(&cfg.Security.Mode, "PERSONAFORGE_SECURITY_MODE")
	setString(&cfg.Security.APIToken, "PERSONAFORGE_API_TOKEN")
}

// setString overrides dst when the environment variable is set and non-empty.
func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// setInt overrides dst when the environment variable is set and parses as an
// integer; unparsable values are ignored.
func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}

// setFloat overrides dst when the environment variable is set and parses as
// a float; unparsable values are ignored.
func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = f
		}
	}
}

// setBool overrides dst when the environment variable is set. It recognizes
// "true", "1", "yes" and "false", "0", "no" (case-insensitive).
func setBool(dst *bool, key string) {
	switch os.Getenv(key) {
	case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
		*dst = true
	case "false", "0", "no", "False", "FALSE", "No", "NO":
		*dst = false
	}
}
