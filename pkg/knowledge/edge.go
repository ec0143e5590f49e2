package knowledge

import (
	"fmt"
	"strings"
)

// RelationType classifies an edge between two knowledge nodes.
type RelationType string

const (
	RelationReferences          RelationType = "REFERENCES"
	RelationDependsOn           RelationType = "DEPENDS_ON"
	RelationSimilarTo           RelationType = "SIMILAR_TO"
	RelationImplements          RelationType = "IMPLEMENTS"
	RelationAlternativeTo       RelationType = "ALTERNATIVE_TO"
	RelationAddresses           RelationType = "ADDRESSES"
	RelationSemanticallySimilar RelationType = "SEMANTICALLY_SIMILAR"
	RelationExtends             RelationType = "EXTENDS"
	RelationContradicts         RelationType = "CONTRADICTS"
)

// ClassifiableRelationTypes is the set a model is allowed to assign when
// refining a SEMANTICALLY_SIMILAR edge. Responses outside this set are
// discarded.
var ClassifiableRelationTypes = []RelationType{
	RelationImplements,
	RelationExtends,
	RelationContradicts,
	RelationDependsOn,
	RelationAlternativeTo,
	RelationAddresses,
	RelationSemanticallySimilar,
}

// Valid reports whether t is one of the known relation types.
func (t RelationType) Valid() bool {
	switch t {
	case RelationReferences, RelationDependsOn, RelationSimilarTo,
		RelationImplements, RelationAlternativeTo, RelationAddresses,
		RelationSemanticallySimilar, RelationExtends, RelationContradicts:
		return true
	default:
		return false
	}
}

// ParseClassifiedRelation maps a model response onto the classifiable
// relation set. It tolerates surrounding whitespace and lowercase input.
func ParseClassifiedRelation(value string) (RelationType, error) {
	t := RelationType(strings.ToUpper(strings.TrimSpace(value)))
	for _, allowed := range ClassifiableRelationTypes {
		if t == allowed {
			return t, nil
		}
	}
	return "", fmt.Errorf("relation type %q is not classifiable", value)
}

// Edge is a weighted, typed relationship between two nodes. At most one
// edge per (SourceID, TargetID, Type) is ever persisted.
type Edge struct {
	SourceID string         `json:"source_id"`
	TargetID string         `json:"target_id"`
	Type     RelationType   `json:"type"`
	Weight   float64        `json:"weight"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Key returns the identity of the edge for deduplication.
func (e *Edge) Key() string {
	return e.SourceID + "|" + e.TargetID + "|" + string(e.Type)
}

// Validate checks edge endpoints, type and weight range.
func (e *Edge) Validate() error {
	if e.SourceID == "" || e.TargetID == "" {
		return fmt.Errorf("edge endpoints must be set")
	}
	if e.SourceID == e.TargetID {
		return fmt.Errorf("self-referential edge on %s", e.SourceID)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown relation type %q", e.Type)
	}
	if e.Weight < 0 || e.Weight > 1 {
		return fmt.Errorf("edge weight %f out of range [0,1]", e.Weight)
	}
	return nil
}
