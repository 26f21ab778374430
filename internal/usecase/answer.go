package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
	"groundrag/internal/port"
)

// AnswerUseCase retrieves passages for a question and asks the generator
// to answer from them alone.
type AnswerUseCase struct {
	retrieve    *RetrieveUseCase
	generator   port.Generator
	template    AnswerTemplate
	temperature float64
	logger      *slog.Logger
}

// NewAnswerUseCase creates a new answer use case.
func NewAnswerUseCase(
	embedder port.Embedder,
	generator port.Generator,
	template AnswerTemplate,
	temperature float64,
	logger *slog.Logger,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retrieve:    NewRetrieveUseCase(embedder),
		generator:   generator,
		template:    template,
		temperature: temperature,
		logger:      logger,
	}
}

// Answer returns the generated text verbatim with the passages it was
// given. Usage and model come straight from the generator.
func (u *AnswerUseCase) Answer(ctx context.Context, vs *store.VectorStore, question string, k int) (domain.Answer, error) {
	hits, err := u.retrieve.Retrieve(ctx, vs, question, k)
	if err != nil {
		return domain.Answer{}, err
	}

	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}

	completion, err := u.generator.Generate(ctx, u.template.Messages(question, passages), domain.GenerateOptions{
		Temperature: u.temperature,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	u.logger.Debug("answered question",
		"hits", len(hits),
		"template", u.template.Label(),
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens)

	return domain.Answer{
		Text:    completion.Content,
		Sources: passages,
		Hits:    hits,
		Usage:   completion.Usage,
		Model:   completion.Model,
	}, nil
}
