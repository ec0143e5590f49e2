package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// classifyEntryTokenBudget caps how much of each entry is sent to the
// model. Long pattern implementations otherwise blow past small context
// windows on local deployments.
const classifyEntryTokenBudget = 1024

// RelationshipClassification is the structured verdict of the model for a
// pair of semantically similar entries.
type RelationshipClassification struct {
	RelationshipType string  `json:"relationship_type" jsonschema_description:"One of IMPLEMENTS, EXTENDS, CONTRADICTS, DEPENDS_ON, ALTERNATIVE_TO, ADDRESSES, SEMANTICALLY_SIMILAR."`
	Confidence       float64 `json:"confidence" jsonschema_description:"Confidence in the chosen relationship, between 0.0 and 1.0."`
	Reasoning        string  `json:"reasoning" jsonschema_description:"One sentence explaining the chosen relationship."`
}

// CallClassifyRelationship asks the model to refine the relationship
// between two entry texts. The caller decides what to do with a verdict;
// any transport or parse error is returned untouched so the circuit
// breaker can count it.
func CallClassifyRelationship(
	ctx context.Context,
	client Completer,
	source string,
	target string,
	opts ...GenerateOption,
) (*RelationshipClassification, error) {
	if client == nil {
		return nil, fmt.Errorf("ai client is nil")
	}

	source = NormalizeEntryText(source)
	target = NormalizeEntryText(target)
	if source == "" || target == "" {
		return nil, fmt.Errorf("both entries must have content")
	}

	source, err := truncateToTokens(source, classifyEntryTokenBudget)
	if err != nil {
		return nil, err
	}
	target, err = truncateToTokens(target, classifyEntryTokenBudget)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(ClassifyRelationshipPrompt, source, target)

	var res RelationshipClassification
	err = client.GenerateCompletionWithFormat(
		ctx,
		"classify_relationship",
		"Classify the relationship between two knowledge entries.",
		prompt,
		&res,
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// NormalizeEntryText flattens an entry to a single line for prompting.
func NormalizeEntryText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.Join(strings.Fields(value), " ")
}

func truncateToTokens(value string, budget int) (string, error) {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(value, nil, nil)
	if len(tokens) <= budget {
		return value, nil
	}
	return enc.Decode(tokens[:budget]), nil
}
