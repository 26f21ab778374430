package port

import (
	"context"

	"groundrag/internal/domain"
)

// Generator produces chat completions. Messages always begin with a system
// instruction followed by user turns.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (domain.Completion, error)

	// ModelName returns the name of the model.
	ModelName() string

	Capabilities() domain.Capabilities
}
