package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"groundrag/config"
	"groundrag/internal/port"
)

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (port.Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []Option{
		WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		WithLogger(logger),
	}

	var (
		g   port.Generator
		err error
	)
	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			g, err = NewOpenAICompatibleGenerator("openai", cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, opts...)
		} else {
			g, err = NewOpenAIGenerator(cfg.APIKeyEnv, cfg.Model, opts...)
		}
	case "azure":
		g, err = NewAzureGenerator(cfg.APIKeyEnv, cfg.BaseURL, cfg.Model, cfg.APIVersion, opts...)
	case "ollama":
		g, err = NewOllamaGenerator(cfg.Model, cfg.BaseURL, opts...)
	case "anthropic", "openrouter", "fantasy-openai":
		name := cfg.Provider
		if name == "fantasy-openai" {
			name = "openai"
		}
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
		}
		g, err = NewFantasyGenerator(ctx, FantasyConfig{
			Provider: name,
			APIKey:   apiKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
		})
	case "echo":
		g = NewEchoGenerator()
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return g, nil
}
