package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

var _ port.Generator = (*OpenAIGenerator)(nil)

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIGenerator struct {
	provider   string
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
	azure      bool
	jsonMode   bool
	client     *http.Client
	logger     *slog.Logger
}

type Option func(*OpenAIGenerator)

func WithHTTPClient(c *http.Client) Option {
	return func(g *OpenAIGenerator) { g.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(g *OpenAIGenerator) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// WithJSONMode overrides whether the backend is advertised as supporting
// response_format json_object.
func WithJSONMode(enabled bool) Option {
	return func(g *OpenAIGenerator) { g.jsonMode = enabled }
}

type chatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIGenerator(apiKeyEnv, model string, opts ...Option) (*OpenAIGenerator, error) {
	return NewOpenAICompatibleGenerator("openai", apiKeyEnv, model, "https://api.openai.com/v1", opts...)
}

func NewOllamaGenerator(model, baseURL string, opts ...Option) (*OpenAIGenerator, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	g := newGenerator("ollama", "ollama", model, baseURL, 300*time.Second)
	g.jsonMode = false
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewAzureGenerator targets {endpoint}/openai/deployments/{deployment}/chat/completions.
func NewAzureGenerator(apiKeyEnv, endpoint, deployment, apiVersion string, opts ...Option) (*OpenAIGenerator, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if endpoint == "" || deployment == "" {
		return nil, domain.Validationf("azure chat needs an endpoint and a deployment")
	}
	if apiVersion == "" {
		apiVersion = "2024-05-01-preview"
	}
	base := strings.TrimRight(endpoint, "/") + "/openai/deployments/" + url.PathEscape(deployment)
	g := newGenerator("azure", apiKey, deployment, base, 120*time.Second)
	g.azure = true
	g.apiVersion = apiVersion
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func NewOpenAICompatibleGenerator(provider, apiKeyEnv, model, baseURL string, opts ...Option) (*OpenAIGenerator, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	g := newGenerator(provider, apiKey, model, baseURL, 120*time.Second)
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func newGenerator(provider, apiKey, model, baseURL string, timeout time.Duration) *OpenAIGenerator {
	return &OpenAIGenerator{
		provider: provider,
		apiKey:   apiKey,
		model:    model,
		baseURL:  strings.TrimRight(baseURL, "/"),
		jsonMode: true,
		client:   &http.Client{Timeout: timeout},
		logger:   slog.Default(),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (domain.Completion, error) {
	if len(messages) == 0 {
		return domain.Completion{}, domain.Validationf("no messages to send")
	}

	reqBody := chatRequest{
		Messages:    make([]chatMessage, len(messages)),
		Temperature: opts.Temperature,
	}
	if !g.azure {
		reqBody.Model = g.model
	}
	for i, m := range messages {
		reqBody.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if opts.JSON && g.jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return domain.Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.azure {
		req.Header.Set("api-key", g.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return domain.Completion{}, g.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Completion{}, g.fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Completion{}, g.fail(resp.StatusCode, errors.New(preview(body)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return domain.Completion{}, g.fail(resp.StatusCode, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err))
	}
	if chatResp.Error != nil {
		return domain.Completion{}, g.fail(resp.StatusCode, fmt.Errorf("API error: %s", chatResp.Error.Message))
	}
	if len(chatResp.Choices) == 0 {
		return domain.Completion{}, g.fail(resp.StatusCode, errors.New("response has no choices"))
	}

	out := domain.Completion{
		Content:      chatResp.Choices[0].Message.Content,
		FinishReason: chatResp.Choices[0].FinishReason,
		Model:        chatResp.Model,
	}
	if out.Model == "" {
		out.Model = g.model
	}
	if chatResp.Usage != nil {
		out.Usage = domain.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}

	g.logger.Debug("chat completion",
		"provider", g.provider,
		"model", out.Model,
		"total_tokens", out.Usage.TotalTokens,
		"elapsed", time.Since(start))
	return out, nil
}

func (g *OpenAIGenerator) endpoint() string {
	if g.azure {
		return g.baseURL + "/chat/completions?api-version=" + url.QueryEscape(g.apiVersion)
	}
	return g.baseURL + "/chat/completions"
}

func (g *OpenAIGenerator) fail(status int, err error) error {
	return &domain.ProviderError{Provider: g.provider, Op: "generate", StatusCode: status, Err: err}
}

func (g *OpenAIGenerator) ModelName() string { return g.model }

func (g *OpenAIGenerator) Capabilities() domain.Capabilities {
	return domain.Capabilities{Chat: true, JSONMode: g.jsonMode}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
