package domain

import "time"

// Document is a text blob whose identity is its ingestion-order position.
type Document struct {
	Position int
	Path     string
	Text     string
}

// Hit is a single retrieval result. Position is the index of the matched
// document in the store it came from.
type Hit struct {
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
	Position int     `json:"position"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage is whatever token accounting the generation capability reports.
// The engine passes it through without interpreting it.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is the output of one generation call.
type Completion struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
}

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	Temperature float64
	JSON        bool // ask for a JSON object response; only honored when Capabilities.JSONMode
}

// Capabilities describes what an embedding or generation backend supports.
// Callers check it instead of probing the backend with speculative calls.
type Capabilities struct {
	Embeddings bool `json:"embeddings"`
	Chat       bool `json:"chat"`
	JSONMode   bool `json:"json_mode"`
	LogProbs   bool `json:"log_probs"`
	MaxBatch   int  `json:"max_batch,omitempty"`
}

// Answer is a grounded answer plus the passages it was grounded on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
	Hits    []Hit    `json:"-"`
	Usage   Usage    `json:"usage"`
	Model   string   `json:"model"`
}

// Generation describes one published store.
type Generation struct {
	ID             uint64    `json:"id"`
	Prefix         string    `json:"prefix"`
	DocumentCount  int       `json:"document_count"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embedding_model"`
	ConfigHash     string    `json:"config_hash"`
	CreatedAt      time.Time `json:"created_at"`
}
