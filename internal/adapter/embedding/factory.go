package embedding

import (
	"fmt"
	"log/slog"
	"time"

	"groundrag/config"
	"groundrag/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (port.Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []Option{
		WithBatchSize(cfg.BatchSize),
		WithDimension(cfg.Dimension),
		WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second),
		WithLogger(logger),
	}

	var (
		e   port.Embedder
		err error
	)
	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			e, err = NewOpenAICompatibleEmbedder("openai", cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, opts...)
		} else {
			e, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
		}
	case "azure":
		e, err = NewAzureEmbedder(cfg.APIKeyEnv, cfg.BaseURL, cfg.Model, cfg.APIVersion, opts...)
	case "jina":
		e, err = NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.Model, cfg.BaseURL, opts...)
	case "hash":
		e = NewHashEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}
