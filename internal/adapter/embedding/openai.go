package embedding

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

var _ port.Embedder = (*OpenAIEmbedder)(nil)

const defaultBatchSize = 100

// OpenAIEmbedder talks to any OpenAI-compatible /embeddings endpoint. Azure
// deployments use the deployment URL layout and an api-key header.
type OpenAIEmbedder struct {
	provider   string
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
	azure      bool
	dimension  int
	batchSize  int
	client     *http.Client
	logger     *slog.Logger
}

type Option func(*OpenAIEmbedder)

func WithHTTPClient(c *http.Client) Option {
	return func(e *OpenAIEmbedder) { e.client = c }
}

func WithBatchSize(n int) Option {
	return func(e *OpenAIEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDimension sets the dimension reported for models missing from the
// built-in table.
func WithDimension(d int) Option {
	return func(e *OpenAIEmbedder) {
		if d > 0 && e.dimension == 0 {
			e.dimension = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *OpenAIEmbedder) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"jina-embeddings-v3":     1024,
	"jina-embeddings-v4":     2048,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

func NewOpenAIEmbedder(apiKeyEnv, model string, opts ...Option) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder("openai", apiKeyEnv, model, "https://api.openai.com/v1", opts...)
}

func NewJinaEmbedder(apiKeyEnv, model string, opts ...Option) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder("jina", apiKeyEnv, model, "https://api.jina.ai/v1", opts...)
}

func NewOllamaEmbedder(model, baseURL string, opts ...Option) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	e := newEmbedder("ollama", "ollama", model, baseURL, 120*time.Second)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewAzureEmbedder targets {endpoint}/openai/deployments/{deployment}/embeddings.
func NewAzureEmbedder(apiKeyEnv, endpoint, deployment, apiVersion string, opts ...Option) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if endpoint == "" || deployment == "" {
		return nil, domain.Validationf("azure embeddings need an endpoint and a deployment")
	}
	if apiVersion == "" {
		apiVersion = "2024-05-01-preview"
	}
	base := strings.TrimRight(endpoint, "/") + "/openai/deployments/" + url.PathEscape(deployment)
	e := newEmbedder("azure", apiKey, deployment, base, 60*time.Second)
	e.azure = true
	e.apiVersion = apiVersion
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func NewOpenAICompatibleEmbedder(provider, apiKeyEnv, model, baseURL string, opts ...Option) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	e := newEmbedder(provider, apiKey, model, baseURL, 60*time.Second)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func newEmbedder(provider, apiKey, model, baseURL string, timeout time.Duration) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		provider:  provider,
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		dimension: knownDimensions[model],
		batchSize: defaultBatchSize,
		client:    &http.Client{Timeout: timeout},
		logger:    slog.Default(),
	}
}

// Embed returns one vector per input text, in input order. Inputs larger
// than the batch size are split into several requests.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}

	e.logger.Debug("embedded texts", "provider", e.provider, "model", e.model, "count", len(all))
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{Input: texts}
	if !e.azure {
		reqBody.Model = e.model
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.fail(resp.StatusCode, errors.New(preview(body)))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, e.fail(resp.StatusCode, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err))
	}

	if embResp.Error != nil {
		return nil, e.fail(resp.StatusCode, fmt.Errorf("API error: %s", embResp.Error.Message))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, e.fail(resp.StatusCode, fmt.Errorf("response is missing embedding %d of %d", i, len(texts)))
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) endpoint() string {
	if e.azure {
		return e.baseURL + "/embeddings?api-version=" + url.QueryEscape(e.apiVersion)
	}
	return e.baseURL + "/embeddings"
}

func (e *OpenAIEmbedder) fail(status int, err error) error {
	return &domain.ProviderError{Provider: e.provider, Op: "embed", StatusCode: status, Err: err}
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Capabilities() domain.Capabilities {
	return domain.Capabilities{Embeddings: true, MaxBatch: e.batchSize}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
