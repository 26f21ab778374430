package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Store      StoreConfig      `yaml:"store"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IngestConfig controls which files become documents.
type IngestConfig struct {
	DocsPath string   `yaml:"docs_path"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// StoreConfig controls where published stores live.
type StoreConfig struct {
	Path            string `yaml:"path"` // defaults to <dir>/.rag
	KeepGenerations int    `yaml:"keep_generations"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK int `yaml:"top_k"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"` // "openai", "azure", "ollama", "jina", "hash"
	Model        string `yaml:"model"`    // e.g., "text-embedding-3-small"
	APIKeyEnv    string `yaml:"api_key_env"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
	Dimension    int    `yaml:"dimension"`
	BatchSize    int    `yaml:"batch_size"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	CacheSize    int    `yaml:"cache_size"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`
}

// GenerationConfig holds chat model configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "azure", "ollama", "anthropic", "openrouter", "fantasy-openai", "echo"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	APIVersion  string  `yaml:"api_version"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// PromptsConfig selects an answer prompt from the registry. Empty Name keeps
// the built-in grounded answer template.
type PromptsConfig struct {
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

var (
	embeddingProviders  = map[string]bool{"openai": true, "azure": true, "ollama": true, "jina": true, "hash": true}
	generationProviders = map[string]bool{
		"openai": true, "azure": true, "ollama": true,
		"anthropic": true, "openrouter": true, "fantasy-openai": true, "echo": true,
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			DocsPath: "data/docs",
			Includes: []string{"**/*.txt"},
			Excludes: []string{"**/.git/**", "**/.rag/**", "**/node_modules/**"},
		},
		Store: StoreConfig{
			KeepGenerations: 3,
		},
		Retrieve: RetrieveConfig{
			TopK: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Model:        "text-embedding-3-small",
			APIKeyEnv:    "OPENAI_API_KEY",
			Dimension:    1536,
			BatchSize:    100,
			TimeoutSecs:  60,
			CacheSize:    256,
			CacheTTLSecs: 300,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
			TimeoutSecs: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if c.Retrieve.TopK < 1 {
		return fmt.Errorf("retrieve.top_k must be >= 1, got %d", c.Retrieve.TopK)
	}
	if !embeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if !generationProviders[c.Generation.Provider] {
		return fmt.Errorf("unsupported generation provider: %s", c.Generation.Provider)
	}
	if c.Embedding.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size must not be negative, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be >= 1 for the hash provider")
	}
	return nil
}

// LoadEnv loads a .env file from dir into the process environment. Variables
// already set win. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides configuration from well-known environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.Generation.Provider = v
		if v == "azure" {
			c.Embedding.Provider = "azure"
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("OPENAI_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		if c.Embedding.Provider == "azure" {
			c.Embedding.BaseURL = v
		}
		if c.Generation.Provider == "azure" {
			c.Generation.BaseURL = v
		}
	}
	if v := os.Getenv("AZURE_OPENAI_CHAT_DEPLOYMENT"); v != "" && c.Generation.Provider == "azure" {
		c.Generation.Model = v
	}
	if v := os.Getenv("AZURE_OPENAI_EMBED_DEPLOYMENT"); v != "" && c.Embedding.Provider == "azure" {
		c.Embedding.Model = v
	}
	if c.Embedding.Provider == "azure" && os.Getenv("AZURE_OPENAI_API_KEY") != "" {
		c.Embedding.APIKeyEnv = "AZURE_OPENAI_API_KEY"
	}
	if c.Generation.Provider == "azure" && os.Getenv("AZURE_OPENAI_API_KEY") != "" {
		c.Generation.APIKeyEnv = "AZURE_OPENAI_API_KEY"
	}
	if v := os.Getenv("VECTOR_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DOCS_PATH"); v != "" {
		c.Ingest.DocsPath = v
	}
	if v := os.Getenv("RAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Retrieve.TopK = k
		}
	}
}

// RAGDir returns the state directory for a root, honoring Store.Path.
func (c *Config) RAGDir(dir string) string {
	if c.Store.Path != "" {
		if filepath.IsAbs(c.Store.Path) {
			return c.Store.Path
		}
		return filepath.Join(dir, c.Store.Path)
	}
	return filepath.Join(dir, ".rag")
}

// ManifestPath returns the path to the generation manifest database.
func (c *Config) ManifestPath(dir string) string {
	return filepath.Join(c.RAGDir(dir), "manifest.db")
}

// GenerationsDir returns the directory holding published store generations.
func (c *Config) GenerationsDir(dir string) string {
	return filepath.Join(c.RAGDir(dir), "generations")
}

// EnsureRAGDir ensures the state directory exists.
func (c *Config) EnsureRAGDir(dir string) error {
	return os.MkdirAll(c.RAGDir(dir), 0755)
}
