package llm

import (
	"context"
	"log/slog"
	"sync"

	"groundrag/config"
	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Generator = (*LazyGenerator)(nil)

// LazyGenerator defers building the configured generator until it is first
// used, so commands that only ingest or search never need chat credentials.
// A construction failure is returned by every later call.
type LazyGenerator struct {
	ctx    context.Context
	cfg    config.GenerationConfig
	logger *slog.Logger

	once sync.Once
	gen  port.Generator
	err  error
}

func NewLazy(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) *LazyGenerator {
	return &LazyGenerator{ctx: ctx, cfg: cfg, logger: logger}
}

func (g *LazyGenerator) get() (port.Generator, error) {
	g.once.Do(func() {
		g.gen, g.err = New(g.ctx, g.cfg, g.logger)
	})
	return g.gen, g.err
}

// Err builds the generator if needed and reports whether that failed.
func (g *LazyGenerator) Err() error {
	_, err := g.get()
	return err
}

func (g *LazyGenerator) Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (domain.Completion, error) {
	gen, err := g.get()
	if err != nil {
		return domain.Completion{}, err
	}
	return gen.Generate(ctx, messages, opts)
}

// ModelName reports the configured model without building the generator.
func (g *LazyGenerator) ModelName() string {
	if g.cfg.Provider == "echo" {
		return "echo"
	}
	return g.cfg.Model
}

// Capabilities is empty when the generator cannot be built.
func (g *LazyGenerator) Capabilities() domain.Capabilities {
	gen, err := g.get()
	if err != nil {
		return domain.Capabilities{}
	}
	return gen.Capabilities()
}
