package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"groundrag/internal/domain"
	"groundrag/internal/port"
)

// DefaultJudgePrompt asks for a JSON verdict on a 1-5 scale.
const DefaultJudgePrompt = "You are an evaluator. Score the ASSISTANT answer from 1 (bad) to 5 (excellent) on relevance and faithfulness " +
	"relative to the USER input and CONTEXT (if any). Respond as JSON: " +
	`{"relevance":<1-5>,"faithfulness":<1-5>,"comments":"..."}.`

// Verdict is a judge's scoring of one answer. When the judge output could
// not be read, ParseError is set, the scores are zero and the raw output
// is kept in ParseError.Raw.
type Verdict struct {
	Relevance    int                `json:"relevance"`
	Faithfulness int                `json:"faithfulness"`
	Comments     string             `json:"comments,omitempty"`
	ParseError   *domain.ParseError `json:"-"`
	Usage        domain.Usage       `json:"usage"`
}

// JudgeUseCase scores answers with a generator acting as the judge.
type JudgeUseCase struct {
	generator port.Generator
	system    string
	logger    *slog.Logger
}

// NewJudgeUseCase creates a judge. An empty system prompt selects
// DefaultJudgePrompt.
func NewJudgeUseCase(generator port.Generator, system string, logger *slog.Logger) *JudgeUseCase {
	if system == "" {
		system = DefaultJudgePrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JudgeUseCase{generator: generator, system: system, logger: logger}
}

// Judge scores answer against the user input and optional context. Output
// that does not parse is reported in the Verdict, not as an error.
func (u *JudgeUseCase) Judge(ctx context.Context, user, answer, contextText string) (Verdict, error) {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: u.system},
		{Role: domain.RoleUser, Content: fmt.Sprintf("USER: %s\nCONTEXT: %s\nASSISTANT: %s", user, contextText, answer)},
	}
	opts := domain.GenerateOptions{
		JSON: u.generator.Capabilities().JSONMode,
	}

	completion, err := u.generator.Generate(ctx, messages, opts)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge generation failed: %w", err)
	}

	v, perr := parseVerdict(completion.Content)
	if perr != nil {
		u.logger.Warn("judge output did not parse", "error", perr.Err)
		v = Verdict{ParseError: perr}
	}
	v.Usage = completion.Usage
	return v, nil
}

func parseVerdict(raw string) (Verdict, *domain.ParseError) {
	body := stripFences(raw)
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var parsed struct {
		Relevance    *float64 `json:"relevance"`
		Faithfulness *float64 `json:"faithfulness"`
		Comments     string   `json:"comments"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Verdict{}, &domain.ParseError{Raw: raw, Err: err}
	}
	if parsed.Relevance == nil || parsed.Faithfulness == nil {
		return Verdict{}, &domain.ParseError{Raw: raw, Err: errors.New("missing relevance or faithfulness")}
	}

	rel, fai := int(math.Round(*parsed.Relevance)), int(math.Round(*parsed.Faithfulness))
	if rel < 1 || rel > 5 || fai < 1 || fai > 5 {
		return Verdict{}, &domain.ParseError{Raw: raw, Err: fmt.Errorf("scores out of range: relevance=%d faithfulness=%d", rel, fai)}
	}

	return Verdict{Relevance: rel, Faithfulness: fai, Comments: parsed.Comments}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// EvalCase is one line of an evaluation dataset. Chat datasets use Input,
// RAG datasets use Question and, optionally, Contexts.
type EvalCase struct {
	Input    string   `json:"input,omitempty"`
	Question string   `json:"question,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
}

func (c EvalCase) prompt() string {
	if c.Question != "" {
		return c.Question
	}
	return c.Input
}

// ReadCases parses a JSONL dataset. Blank lines are skipped.
func ReadCases(path string) ([]EvalCase, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: dataset %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	defer f.Close()

	var cases []EvalCase
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c EvalCase
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, domain.Validationf("%s:%d: %v", path, line, err)
		}
		if c.prompt() == "" {
			return nil, domain.Validationf("%s:%d: case has neither input nor question", path, line)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return cases, nil
}

// Searcher finds passages for a question. Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, question string, topK int) ([]domain.Hit, error)
}

// EvalResult is one scored case.
type EvalResult struct {
	Input   string  `json:"input"`
	Context string  `json:"context,omitempty"`
	Answer  string  `json:"answer"`
	Verdict Verdict `json:"verdict"`
}

// Report aggregates an evaluation run.
type Report struct {
	Task            string       `json:"task"`
	Results         []EvalResult `json:"results"`
	AvgRelevance    float64      `json:"avg_relevance"`
	AvgFaithfulness float64      `json:"avg_faithfulness"`
	ParseErrors     int          `json:"parse_errors"`
}

// EvalUseCase answers each case with the generator and scores the answer
// with the judge.
type EvalUseCase struct {
	generator  port.Generator
	judge      *JudgeUseCase
	template   AnswerTemplate
	chatSystem string
	searcher   Searcher
	topK       int
	logger     *slog.Logger
}

type EvalOption func(*EvalUseCase)

// WithChatSystem prepends a system prompt to chat cases.
func WithChatSystem(system string) EvalOption {
	return func(u *EvalUseCase) { u.chatSystem = system }
}

// WithSearcher retrieves contexts for RAG cases that carry none.
func WithSearcher(s Searcher, topK int) EvalOption {
	return func(u *EvalUseCase) {
		u.searcher = s
		u.topK = topK
	}
}

func WithEvalTemplate(t AnswerTemplate) EvalOption {
	return func(u *EvalUseCase) { u.template = t }
}

func WithEvalLogger(l *slog.Logger) EvalOption {
	return func(u *EvalUseCase) { u.logger = l }
}

// NewEvalUseCase creates a new evaluation use case.
func NewEvalUseCase(generator port.Generator, judge *JudgeUseCase, opts ...EvalOption) *EvalUseCase {
	u := &EvalUseCase{
		generator: generator,
		judge:     judge,
		template:  DefaultAnswerTemplate(),
		topK:      4,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RunRAG answers every case from its contexts with the grounded template.
func (u *EvalUseCase) RunRAG(ctx context.Context, cases []EvalCase) (*Report, error) {
	report := &Report{Task: "rag"}
	for i, c := range cases {
		question := c.prompt()
		passages := c.Contexts
		if len(passages) == 0 && u.searcher != nil {
			hits, err := u.searcher.Search(ctx, question, u.topK)
			if err != nil {
				return nil, fmt.Errorf("case %d: retrieval failed: %w", i+1, err)
			}
			for _, h := range hits {
				passages = append(passages, h.Text)
			}
		}

		completion, err := u.generator.Generate(ctx, u.template.Messages(question, passages), domain.GenerateOptions{})
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}

		contextText := strings.Join(passages, "\n")
		verdict, err := u.judge.Judge(ctx, question, completion.Content, contextText)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		report.add(EvalResult{Input: question, Context: contextText, Answer: completion.Content, Verdict: verdict})
	}
	report.finish()
	return report, nil
}

// RunChat answers every case as a plain chat turn.
func (u *EvalUseCase) RunChat(ctx context.Context, cases []EvalCase) (*Report, error) {
	report := &Report{Task: "chat"}
	for i, c := range cases {
		input := c.prompt()
		var messages []domain.Message
		if u.chatSystem != "" {
			messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: u.chatSystem})
		}
		messages = append(messages, domain.Message{Role: domain.RoleUser, Content: input})

		completion, err := u.generator.Generate(ctx, messages, domain.GenerateOptions{})
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}

		verdict, err := u.judge.Judge(ctx, input, completion.Content, "")
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i+1, err)
		}
		report.add(EvalResult{Input: input, Answer: completion.Content, Verdict: verdict})
	}
	report.finish()
	return report, nil
}

func (r *Report) add(res EvalResult) {
	r.Results = append(r.Results, res)
	if res.Verdict.ParseError != nil {
		r.ParseErrors++
	}
}

// finish averages over every case; unparsed verdicts count as zero.
func (r *Report) finish() {
	if len(r.Results) == 0 {
		return
	}
	var rel, fai int
	for _, res := range r.Results {
		rel += res.Verdict.Relevance
		fai += res.Verdict.Faithfulness
	}
	n := float64(len(r.Results))
	r.AvgRelevance = float64(rel) / n
	r.AvgFaithfulness = float64(fai) / n
}

// Markdown renders the report for humans.
func (r *Report) Markdown() string {
	var b strings.Builder
	title, inLabel, outLabel := "Chat Eval", "Input", "Answer"
	if r.Task == "rag" {
		title, inLabel, outLabel = "RAG Eval", "Q", "A"
	}

	fmt.Fprintf(&b, "# %s\n\nAvg relevance: %.2f | Avg faithfulness: %.2f\n", title, r.AvgRelevance, r.AvgFaithfulness)
	if r.ParseErrors > 0 {
		fmt.Fprintf(&b, "\nUnparsed judge outputs: %d\n", r.ParseErrors)
	}

	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n## Case\n**%s:** %s\n\n**%s:** %s\n\nScores: R=%d F=%d\n",
			inLabel, res.Input, outLabel, res.Answer, res.Verdict.Relevance, res.Verdict.Faithfulness)
		if res.Verdict.ParseError != nil {
			fmt.Fprintf(&b, "\nJudge output did not parse: `%s`\n", oneLine(res.Verdict.ParseError.Raw))
		} else if res.Verdict.Comments != "" {
			fmt.Fprintf(&b, "\n> %s\n", oneLine(res.Verdict.Comments))
		}
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
