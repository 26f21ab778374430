package usecase

import (
	"fmt"
	"strings"

	"groundrag/internal/domain"
)

// DefaultRefusalPhrase is what the model is told to say when the context
// does not hold the answer.
const DefaultRefusalPhrase = "I don't know based on the documents."

// AnswerTemplate is the fixed instruction used for grounded answers. It is
// a value type with unexported fields; a copy can never change the
// template it came from.
type AnswerTemplate struct {
	role          string
	refusalPhrase string
	concise       bool
	system        string // set when built from a registry prompt
	label         string
}

// DefaultAnswerTemplate answers only from context, refuses with
// DefaultRefusalPhrase and keeps answers concise.
func DefaultAnswerTemplate() AnswerTemplate {
	return AnswerTemplate{
		role:          "a retrieval-augmented assistant",
		refusalPhrase: DefaultRefusalPhrase,
		concise:       true,
		label:         "default",
	}
}

// TemplateFromSystem wraps a system text chosen outside the engine, such as
// a prompt registry version. label names it in logs.
func TemplateFromSystem(label, system string) AnswerTemplate {
	t := DefaultAnswerTemplate()
	t.system = strings.TrimSpace(system)
	t.label = label
	return t
}

func (t AnswerTemplate) RefusalPhrase() string { return t.refusalPhrase }

func (t AnswerTemplate) Label() string { return t.label }

// SystemInstruction renders the template.
func (t AnswerTemplate) SystemInstruction() string {
	if t.system != "" {
		return t.system
	}
	s := fmt.Sprintf(
		"You are %s. Answer ONLY using the provided context. If the answer is not present in the context, say '%s'",
		t.role, t.refusalPhrase)
	if t.concise {
		s += " Be concise."
	}
	return s
}

// ContextBlock renders passages as "- text" bullets separated by a blank
// line, in the order given.
func ContextBlock(passages []string) string {
	bullets := make([]string, len(passages))
	for i, p := range passages {
		bullets[i] = "- " + p
	}
	return strings.Join(bullets, "\n\n")
}

// Messages builds the system and user turns for one grounded question.
func (t AnswerTemplate) Messages(question string, passages []string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: t.SystemInstruction()},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", ContextBlock(passages), question)},
	}
}
