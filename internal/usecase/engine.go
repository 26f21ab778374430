package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"groundrag/config"
	"groundrag/internal/adapter/fs"
	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
	"groundrag/internal/port"
)

// ErrConfigMismatch is returned when the published store was built with a
// different embedding or ingest configuration than the one in effect.
var ErrConfigMismatch = errors.New("published store was built with a different embedding configuration; re-run ingest")

// IngestSummary reports a published ingestion.
type IngestSummary struct {
	DocumentCount int
	Generation    domain.Generation
	Pruned        int
}

// Engine ties ingestion, publication and answering together over a
// generation manifest. The loaded store is cached and reloaded only when
// the current generation changes. Engine is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	manifest *store.Manifest
	genDir   string
	embedder port.Embedder
	answer   *AnswerUseCase
	retrieve *RetrieveUseCase
	progress fs.ProgressFunc
	logger   *slog.Logger

	mu    sync.RWMutex
	genID uint64
	vs    *store.VectorStore
}

type EngineOption func(*engineOptions)

type engineOptions struct {
	template AnswerTemplate
	progress fs.ProgressFunc
	logger   *slog.Logger
}

// WithTemplate replaces the default grounded answer template.
func WithTemplate(t AnswerTemplate) EngineOption {
	return func(o *engineOptions) { o.template = t }
}

// WithProgress reports document reads during Ingest.
func WithProgress(fn fs.ProgressFunc) EngineOption {
	return func(o *engineOptions) { o.progress = fn }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// NewEngine creates an engine publishing generations under genDir.
func NewEngine(
	cfg *config.Config,
	manifest *store.Manifest,
	genDir string,
	embedder port.Embedder,
	generator port.Generator,
	opts ...EngineOption,
) *Engine {
	o := engineOptions{template: DefaultAnswerTemplate(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		cfg:      cfg,
		manifest: manifest,
		genDir:   genDir,
		embedder: embedder,
		answer:   NewAnswerUseCase(embedder, generator, o.template, cfg.Generation.Temperature, o.logger),
		retrieve: NewRetrieveUseCase(embedder),
		progress: o.progress,
		logger:   o.logger,
	}
}

// Build ingests sourceRoot without publishing anything.
func (e *Engine) Build(ctx context.Context, sourceRoot string) (*IngestResult, error) {
	walker := fs.NewWalker(e.cfg.Ingest.Includes, e.cfg.Ingest.Excludes)
	src := fs.NewDirSource(sourceRoot, walker, fs.WithProgress(e.progress), fs.WithLogger(e.logger))
	return NewIngestUseCase(src, e.embedder, e.logger).Ingest(ctx)
}

// Ingest builds a store from sourceRoot, publishes it as the new current
// generation and prunes old generations.
func (e *Engine) Ingest(ctx context.Context, sourceRoot string) (IngestSummary, error) {
	res, err := e.Build(ctx, sourceRoot)
	if err != nil {
		return IngestSummary{}, err
	}

	if err := e.manifest.Migrate(e.cfg); err != nil {
		return IngestSummary{}, fmt.Errorf("failed to update manifest schema: %w", err)
	}

	gen, err := e.manifest.Publish(res.Store, e.genDir, store.PublishMeta{
		Sources:        res.Paths(),
		EmbeddingModel: e.embedder.ModelName(),
		ConfigHash:     store.ComputeConfigHash(e.cfg),
	})
	if err != nil {
		return IngestSummary{}, fmt.Errorf("failed to publish store: %w", err)
	}

	e.mu.Lock()
	e.vs, e.genID = res.Store, gen.ID
	e.mu.Unlock()

	summary := IngestSummary{DocumentCount: len(res.Documents), Generation: gen}
	if keep := e.cfg.Store.KeepGenerations; keep > 0 {
		pruned, err := e.manifest.Prune(keep)
		if err != nil {
			e.logger.Warn("failed to prune old generations", "error", err)
		}
		summary.Pruned = pruned
	}

	e.logger.Info("published generation",
		"generation", gen.ID,
		"documents", gen.DocumentCount,
		"dimension", gen.Dimension,
		"pruned", summary.Pruned)
	return summary, nil
}

// Ask answers question from the current generation. topK of 0 uses the
// configured default.
func (e *Engine) Ask(ctx context.Context, question string, topK int) (domain.Answer, error) {
	vs, _, err := e.current()
	if err != nil {
		return domain.Answer{}, err
	}
	return e.answer.Answer(ctx, vs, question, e.k(topK))
}

// Search returns the raw hits for question from the current generation.
func (e *Engine) Search(ctx context.Context, question string, topK int) ([]domain.Hit, error) {
	vs, _, err := e.current()
	if err != nil {
		return nil, err
	}
	return e.retrieve.Retrieve(ctx, vs, question, e.k(topK))
}

// Current returns the generation Ask and Search serve.
func (e *Engine) Current() (domain.Generation, error) {
	_, gen, err := e.current()
	return gen, err
}

// Sources returns the source path of every document in the current
// generation, by position. It is empty for generations published without
// source paths.
func (e *Engine) Sources() ([]string, error) {
	gen, err := e.manifest.Current()
	if err != nil {
		return nil, err
	}
	return e.manifest.Sources(gen.ID)
}

func (e *Engine) k(topK int) int {
	if topK == 0 {
		return e.cfg.Retrieve.TopK
	}
	return topK
}

func (e *Engine) current() (*store.VectorStore, domain.Generation, error) {
	gen, err := e.manifest.Current()
	if err != nil {
		return nil, domain.Generation{}, err
	}
	if gen.ConfigHash != "" && gen.ConfigHash != store.ComputeConfigHash(e.cfg) {
		return nil, gen, fmt.Errorf("generation %d: %w", gen.ID, ErrConfigMismatch)
	}

	e.mu.RLock()
	if e.vs != nil && e.genID == gen.ID {
		vs := e.vs
		e.mu.RUnlock()
		return vs, gen, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vs != nil && e.genID == gen.ID {
		return e.vs, gen, nil
	}

	vs, err := store.Load(gen.Prefix)
	if err != nil {
		return nil, gen, fmt.Errorf("failed to load generation %d: %w", gen.ID, err)
	}
	e.logger.Debug("loaded generation", "generation", gen.ID, "documents", vs.Len())
	e.vs, e.genID = vs, gen.ID
	return vs, gen, nil
}
