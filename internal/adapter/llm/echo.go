package llm

import (
	"context"
	"strings"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Generator = (*EchoGenerator)(nil)

// EchoGenerator answers with the first passage of the context block in the
// last user message. It makes no network calls.
type EchoGenerator struct{}

func NewEchoGenerator() *EchoGenerator { return &EchoGenerator{} }

func (g *EchoGenerator) Generate(ctx context.Context, messages []domain.Message, _ domain.GenerateOptions) (domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Completion{}, err
	}

	var user string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			user = messages[i].Content
			break
		}
	}

	return domain.Completion{
		Content:      firstPassage(user),
		FinishReason: "stop",
		Model:        g.ModelName(),
	}, nil
}

func (g *EchoGenerator) ModelName() string { return "echo" }

func (g *EchoGenerator) Capabilities() domain.Capabilities {
	return domain.Capabilities{Chat: true}
}

func firstPassage(user string) string {
	const marker = "Context:\n"
	i := strings.Index(user, marker)
	if i < 0 {
		return strings.TrimSpace(user)
	}
	block := user[i+len(marker):]
	if j := strings.Index(block, "\n"); j >= 0 {
		block = block[:j]
	}
	block = strings.TrimPrefix(block, "- ")
	if strings.HasPrefix(block, "Question:") {
		return ""
	}
	return strings.TrimSpace(block)
}
