package ai

import (
	"context"
	"fmt"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

const extractExcerptTokenBudget = 2048

// KnowledgeExtraction is the structured result of mining one
// conversation excerpt. Kind is empty when the model found nothing
// worth keeping.
type KnowledgeExtraction struct {
	Kind string `json:"kind" jsonschema_description:"One of decision, pattern, failure, or empty when nothing is extractable."`

	Description string `json:"description" jsonschema_description:"Decision only: what was decided."`
	Rationale   string `json:"rationale" jsonschema_description:"Decision only: why it was decided."`

	Name           string `json:"name" jsonschema_description:"Pattern only: short label for the pattern."`
	Implementation string `json:"implementation" jsonschema_description:"Pattern only: how the pattern is applied."`
	Context        string `json:"context" jsonschema_description:"Pattern only: when the pattern applies."`

	Attempt       string `json:"attempt" jsonschema_description:"Failure only: what was tried."`
	ReasonFailed  string `json:"reason_failed" jsonschema_description:"Failure only: why it did not work."`
	LessonLearned string `json:"lesson_learned" jsonschema_description:"Failure only: what to do differently."`
}

// Node converts the extraction into a draft node without an ID. Returns
// nil when the model declined to extract.
func (e *KnowledgeExtraction) Node() (*knowledge.Node, error) {
	if e.Kind == "" {
		return nil, nil
	}
	kind, err := knowledge.ParseKind(e.Kind)
	if err != nil {
		return nil, err
	}
	node := &knowledge.Node{
		Kind:           kind,
		Description:    e.Description,
		Rationale:      e.Rationale,
		Name:           e.Name,
		Implementation: e.Implementation,
		Context:        e.Context,
		Attempt:        e.Attempt,
		ReasonFailed:   e.ReasonFailed,
		LessonLearned:  e.LessonLearned,
	}
	if node.Text() == "" {
		return nil, fmt.Errorf("extraction of kind %s has no content", kind)
	}
	return node, nil
}

// CallExtractKnowledge asks the model to mine one conversation excerpt.
// Errors are returned untouched so the circuit breaker can classify
// them.
func CallExtractKnowledge(
	ctx context.Context,
	client Completer,
	content string,
	opts ...GenerateOption,
) (*KnowledgeExtraction, error) {
	if client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}

	content = NormalizeEntryText(content)
	if content == "" {
		return nil, fmt.Errorf("excerpt is empty")
	}
	content, err := truncateToTokens(content, extractExcerptTokenBudget)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(ExtractKnowledgePrompt, content)

	var res KnowledgeExtraction
	err = client.GenerateCompletionWithFormat(
		ctx,
		"extract_knowledge",
		"Extract a decision, pattern or failure from a conversation excerpt.",
		prompt,
		&res,
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
