package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"groundrag/config"
	"groundrag/internal/adapter/cache"
	"groundrag/internal/adapter/embedding"
	"groundrag/internal/adapter/fs"
	"groundrag/internal/adapter/llm"
	"groundrag/internal/adapter/prompts"
	"groundrag/internal/adapter/store"
	"groundrag/internal/port"
	"groundrag/internal/usecase"
)

// app holds everything a command needs to talk to the engine. Close
// releases the manifest.
type app struct {
	cfg       *config.Config
	manifest  *store.Manifest
	embedder  port.Embedder
	generator port.Generator
	registry  *prompts.Registry
	template  usecase.AnswerTemplate
	engine    *usecase.Engine
}

type appOptions struct {
	promptRef string
	progress  fs.ProgressFunc
	// chat builds the generator up front so missing credentials fail fast.
	chat bool
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	if err := cfg.EnsureRAGDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	manifest, err := store.OpenManifest(cfg.ManifestPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	a, err := wireApp(ctx, cfg, manifest, dir, opts)
	if err != nil {
		manifest.Close()
		return nil, err
	}
	return a, nil
}

func wireApp(ctx context.Context, cfg *config.Config, manifest *store.Manifest, dir string, opts appOptions) (*app, error) {
	base, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	var embedder port.Embedder = base
	if cfg.Embedding.CacheSize > 0 {
		ttl := time.Duration(cfg.Embedding.CacheTTLSecs) * time.Second
		embedder = cache.NewCachedEmbedder(base, cache.NewVectorCache(cfg.Embedding.CacheSize, ttl))
	}

	generator := llm.NewLazy(ctx, cfg.Generation, logger)
	if opts.chat {
		if err := generator.Err(); err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
	}

	registry, err := loadRegistry(cfg, dir)
	if err != nil {
		return nil, err
	}

	template, err := resolveTemplate(cfg, registry, opts.promptRef)
	if err != nil {
		return nil, err
	}

	engine := usecase.NewEngine(cfg, manifest, cfg.GenerationsDir(dir), embedder, generator,
		usecase.WithTemplate(template),
		usecase.WithProgress(opts.progress),
		usecase.WithLogger(logger),
	)

	return &app{
		cfg:       cfg,
		manifest:  manifest,
		embedder:  embedder,
		generator: generator,
		registry:  registry,
		template:  template,
		engine:    engine,
	}, nil
}

func (a *app) Close() error {
	return a.manifest.Close()
}

func loadRegistry(cfg *config.Config, dir string) (*prompts.Registry, error) {
	if cfg.Prompts.Path == "" {
		return prompts.Default()
	}
	path := cfg.Prompts.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	reg, err := prompts.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt registry: %w", err)
	}
	return reg, nil
}

// resolveTemplate picks the answer template: an explicit name[@version]
// reference wins over prompts.name in the config. Neither keeps the built-in
// grounded template.
func resolveTemplate(cfg *config.Config, reg *prompts.Registry, ref string) (usecase.AnswerTemplate, error) {
	name, ver := cfg.Prompts.Name, cfg.Prompts.Version
	if ref != "" {
		name, ver = prompts.ParseRef(ref)
	}
	if name == "" {
		return usecase.DefaultAnswerTemplate(), nil
	}

	p, err := reg.Get(name, ver)
	if err != nil {
		return usecase.AnswerTemplate{}, fmt.Errorf("failed to resolve prompt %q: %w", name, err)
	}
	return usecase.TemplateFromSystem(p.Name+"@"+p.Version, p.System), nil
}

// docsRoot resolves the corpus directory: the first argument when given,
// otherwise ingest.docs_path relative to the root directory.
func docsRoot(args []string) string {
	path := GetConfig().Ingest.DocsPath
	if len(args) > 0 {
		path = args[0]
	}
	if filepath.IsAbs(path) {
		return path
	}
	if len(args) > 0 {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return filepath.Join(GetRootDir(), path)
}
