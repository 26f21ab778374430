package usecase

import (
	"context"
	"sync"

	"groundrag/internal/adapter/embedding"
	"groundrag/internal/domain"
)

type stubSource struct {
	docs []domain.Document
	err  error
}

func (s *stubSource) Documents(context.Context) ([]domain.Document, error) {
	return s.docs, s.err
}

func docsOf(texts ...string) []domain.Document {
	docs := make([]domain.Document, len(texts))
	for i, t := range texts {
		docs[i] = domain.Document{Position: i, Path: "doc" + string(rune('a'+i)) + ".txt", Text: t}
	}
	return docs
}

// countingEmbedder wraps a HashEmbedder and records every call.
type countingEmbedder struct {
	mu    sync.Mutex
	inner *embedding.HashEmbedder
	calls [][]string
	err   error
	drop  int // vectors to drop from each response
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{inner: embedding.NewHashEmbedder(512)}
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out, err := e.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return out[:len(out)-e.drop], nil
}

func (e *countingEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *countingEmbedder) Dimension() int                    { return e.inner.Dimension() }
func (e *countingEmbedder) ModelName() string                 { return "hash" }
func (e *countingEmbedder) Capabilities() domain.Capabilities { return e.inner.Capabilities() }

// recordingGenerator returns canned completions in order and records the
// messages it was sent.
type recordingGenerator struct {
	mu       sync.Mutex
	replies  []string
	usage    domain.Usage
	model    string
	jsonMode bool
	err      error
	calls    [][]domain.Message
	options  []domain.GenerateOptions
}

func (g *recordingGenerator) Generate(_ context.Context, messages []domain.Message, opts domain.GenerateOptions) (domain.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	g.options = append(g.options, opts)
	if g.err != nil {
		return domain.Completion{}, g.err
	}
	reply := ""
	if len(g.replies) > 0 {
		reply = g.replies[0]
		if len(g.replies) > 1 {
			g.replies = g.replies[1:]
		}
	}
	return domain.Completion{Content: reply, Usage: g.usage, Model: g.model}, nil
}

func (g *recordingGenerator) ModelName() string { return g.model }

func (g *recordingGenerator) Capabilities() domain.Capabilities {
	return domain.Capabilities{Chat: true, JSONMode: g.jsonMode}
}
