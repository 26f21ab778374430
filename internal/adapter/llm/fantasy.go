package llm

import (
	"context"
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Generator = (*FantasyGenerator)(nil)

type FantasyConfig struct {
	Provider string // "anthropic", "openrouter" or "openai"
	APIKey   string
	BaseURL  string
	Model    string
}

// FantasyGenerator adapts a charm.land/fantasy language model. The first
// system message becomes the agent's system prompt and the remaining turns
// are folded into a single prompt.
type FantasyGenerator struct {
	model     fantasy.LanguageModel
	provider  string
	modelName string
}

func NewFantasyGenerator(ctx context.Context, cfg FantasyConfig) (*FantasyGenerator, error) {
	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter":
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		provider, err = openrouter.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported fantasy provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	return &FantasyGenerator{
		model:     model,
		provider:  cfg.Provider,
		modelName: cfg.Model,
	}, nil
}

func (g *FantasyGenerator) Generate(ctx context.Context, messages []domain.Message, _ domain.GenerateOptions) (domain.Completion, error) {
	system, prompt := foldMessages(messages)
	if prompt == "" {
		return domain.Completion{}, domain.Validationf("no user message to send")
	}

	var agentOpts []fantasy.AgentOption
	if system != "" {
		agentOpts = append(agentOpts, fantasy.WithSystemPrompt(system))
	}
	agent := fantasy.NewAgent(g.model, agentOpts...)

	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt: prompt,
	})
	if err != nil {
		return domain.Completion{}, &domain.ProviderError{Provider: g.provider, Op: "generate", Err: err}
	}

	return domain.Completion{
		Content: result.Response.Content.Text(),
		Model:   g.modelName,
		Usage: domain.Usage{
			PromptTokens:     result.TotalUsage.InputTokens,
			CompletionTokens: result.TotalUsage.OutputTokens,
			TotalTokens:      result.TotalUsage.TotalTokens,
		},
	}, nil
}

func (g *FantasyGenerator) ModelName() string { return g.modelName }

func (g *FantasyGenerator) Capabilities() domain.Capabilities {
	return domain.Capabilities{Chat: true}
}

// foldMessages splits off the leading system instruction and renders the
// rest as one prompt. A lone user message is passed through untouched.
func foldMessages(messages []domain.Message) (system, prompt string) {
	rest := messages
	if len(rest) > 0 && rest[0].Role == domain.RoleSystem {
		system = rest[0].Content
		rest = rest[1:]
	}
	if len(rest) == 1 && rest[0].Role == domain.RoleUser {
		return system, rest[0].Content
	}

	var b strings.Builder
	for i, m := range rest {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return system, b.String()
}
