package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
)

func TestJudge_ParsesJSON(t *testing.T) {
	gen := &recordingGenerator{replies: []string{`{"relevance": 4, "faithfulness": 5, "comments": "grounded"}`}}
	v, err := NewJudgeUseCase(gen, "", nil).Judge(context.Background(), "q", "a", "ctx")
	require.NoError(t, err)

	assert.Nil(t, v.ParseError)
	assert.Equal(t, 4, v.Relevance)
	assert.Equal(t, 5, v.Faithfulness)
	assert.Equal(t, "grounded", v.Comments)

	require.Len(t, gen.calls, 1)
	assert.Equal(t, DefaultJudgePrompt, gen.calls[0][0].Content)
	assert.Equal(t, "USER: q\nCONTEXT: ctx\nASSISTANT: a", gen.calls[0][1].Content)
}

func TestJudge_ToleratesFencesAndProse(t *testing.T) {
	tests := []string{
		"```json\n{\"relevance\": 3, \"faithfulness\": 2}\n```",
		"Here is my verdict: {\"relevance\": 3, \"faithfulness\": 2} hope that helps",
		`{"relevance": 3.0, "faithfulness": 2.2}`,
	}
	for _, reply := range tests {
		gen := &recordingGenerator{replies: []string{reply}}
		v, err := NewJudgeUseCase(gen, "", nil).Judge(context.Background(), "q", "a", "")
		require.NoError(t, err)
		assert.Nil(t, v.ParseError, reply)
		assert.Equal(t, 3, v.Relevance, reply)
		assert.Equal(t, 2, v.Faithfulness, reply)
	}
}

func TestJudge_UnparseableOutputIsAResult(t *testing.T) {
	tests := []string{
		"I would give it a four.",
		`{"relevance": 4}`,
		`{"relevance": 9, "faithfulness": 1}`,
	}
	for _, reply := range tests {
		gen := &recordingGenerator{replies: []string{reply}, usage: domain.Usage{TotalTokens: 7}}
		v, err := NewJudgeUseCase(gen, "", nil).Judge(context.Background(), "q", "a", "")
		require.NoError(t, err, reply)
		require.NotNil(t, v.ParseError, reply)
		assert.Equal(t, reply, v.ParseError.Raw)
		assert.Zero(t, v.Relevance)
		assert.Zero(t, v.Faithfulness)
		assert.Equal(t, int64(7), v.Usage.TotalTokens)
	}
}

func TestJudge_JSONModeFollowsCapabilities(t *testing.T) {
	reply := `{"relevance": 1, "faithfulness": 1}`

	plain := &recordingGenerator{replies: []string{reply}}
	_, err := NewJudgeUseCase(plain, "", nil).Judge(context.Background(), "q", "a", "")
	require.NoError(t, err)
	assert.False(t, plain.options[0].JSON)

	jsonCapable := &recordingGenerator{replies: []string{reply}, jsonMode: true}
	_, err = NewJudgeUseCase(jsonCapable, "", nil).Judge(context.Background(), "q", "a", "")
	require.NoError(t, err)
	assert.True(t, jsonCapable.options[0].JSON)
}

func TestJudge_GeneratorErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewJudgeUseCase(&recordingGenerator{err: boom}, "", nil).Judge(context.Background(), "q", "a", "")
	assert.ErrorIs(t, err, boom)
}

func TestReadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.jsonl")
	content := `{"question": "What is the capital of France?", "contexts": ["Paris is the capital of France."]}

{"input": "Say hi"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cases, err := ReadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, []string{"Paris is the capital of France."}, cases[0].Contexts)
	assert.Equal(t, "Say hi", cases[1].prompt())

	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"input\": \"ok\"}\nnot json\n"), 0644))
	_, err = ReadCases(bad)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), ":2:")

	_, err = ReadCases(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEval_RunRAG(t *testing.T) {
	answerer := &recordingGenerator{replies: []string{"Paris.", "I don't know based on the documents."}}
	judge := NewJudgeUseCase(&recordingGenerator{replies: []string{
		`{"relevance": 5, "faithfulness": 5}`,
		"garbage",
	}}, "", nil)

	report, err := NewEvalUseCase(answerer, judge).RunRAG(context.Background(), []EvalCase{
		{Question: "What is the capital of France?", Contexts: []string{"Paris is the capital of France."}},
		{Question: "Who painted it?", Contexts: []string{"The sky is blue.", "Grass is green."}},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, "rag", report.Task)
	assert.Equal(t, 2.5, report.AvgRelevance)
	assert.Equal(t, 2.5, report.AvgFaithfulness)
	assert.Equal(t, 1, report.ParseErrors)
	assert.Equal(t, "The sky is blue.\nGrass is green.", report.Results[1].Context)

	assert.Equal(t, DefaultAnswerTemplate().SystemInstruction(), answerer.calls[0][0].Content)
	assert.Equal(t, "Context:\n- Paris is the capital of France.\n\nQuestion: What is the capital of France?", answerer.calls[0][1].Content)

	md := report.Markdown()
	assert.Contains(t, md, "# RAG Eval")
	assert.Contains(t, md, "Avg relevance: 2.50 | Avg faithfulness: 2.50")
	assert.Contains(t, md, "**Q:** What is the capital of France?")
	assert.Contains(t, md, "Scores: R=5 F=5")
	assert.Contains(t, md, "Judge output did not parse: `garbage`")
}

type stubSearcher struct{ hits []domain.Hit }

func (s stubSearcher) Search(context.Context, string, int) ([]domain.Hit, error) { return s.hits, nil }

func TestEval_RunRAGRetrievesMissingContexts(t *testing.T) {
	answerer := &recordingGenerator{replies: []string{"Paris."}}
	judge := NewJudgeUseCase(&recordingGenerator{replies: []string{`{"relevance": 5, "faithfulness": 4}`}}, "", nil)
	searcher := stubSearcher{hits: []domain.Hit{{Text: "Paris is the capital of France.", Score: 0.8}}}

	report, err := NewEvalUseCase(answerer, judge, WithSearcher(searcher, 2)).RunRAG(context.Background(), []EvalCase{
		{Question: "What is the capital of France?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", report.Results[0].Context)
}

func TestEval_RunChat(t *testing.T) {
	answerer := &recordingGenerator{replies: []string{"Hello!"}}
	judge := NewJudgeUseCase(&recordingGenerator{replies: []string{`{"relevance": 4, "faithfulness": 3}`}}, "", nil)

	report, err := NewEvalUseCase(answerer, judge, WithChatSystem("Be nice.")).RunChat(context.Background(), []EvalCase{
		{Input: "Say hi"},
	})
	require.NoError(t, err)

	require.Len(t, answerer.calls[0], 2)
	assert.Equal(t, "Be nice.", answerer.calls[0][0].Content)
	assert.Equal(t, 4.0, report.AvgRelevance)
	assert.Contains(t, report.Markdown(), "**Input:** Say hi")
}
