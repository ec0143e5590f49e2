package knowledge

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Kind identifies the category of a knowledge node. The set is closed;
// adding a kind requires touching every switch that consumes it.
type Kind string

const (
	KindDecision Kind = "decision"
	KindPattern  Kind = "pattern"
	KindFailure  Kind = "failure"
)

const idAlphabet = "0123456789abcdef"
const idLength = 8

// AllKinds lists every node kind in a stable order.
var AllKinds = []Kind{KindDecision, KindPattern, KindFailure}

// Prefix returns the ID prefix for the kind ("D-", "P-" or "F-").
func (k Kind) Prefix() string {
	switch k {
	case KindDecision:
		return "D-"
	case KindPattern:
		return "P-"
	case KindFailure:
		return "F-"
	default:
		return ""
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDecision, KindPattern, KindFailure:
		return true
	default:
		return false
	}
}

// ParseKind maps a stored kind value back onto the enum.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind: %q", value)
	}
	return k, nil
}

// Node is a single extracted engineering fact. Exactly one of the
// kind-specific field groups is populated, matching Kind.
type Node struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Decision fields.
	Description string `json:"description,omitempty"`
	Rationale   string `json:"rationale,omitempty"`

	// Pattern fields.
	Name           string `json:"name,omitempty"`
	Implementation string `json:"implementation,omitempty"`
	Context        string `json:"context,omitempty"`

	// Failure fields.
	Attempt       string `json:"attempt,omitempty"`
	ReasonFailed  string `json:"reason_failed,omitempty"`
	LessonLearned string `json:"lesson_learned,omitempty"`

	SourceFiles []string  `json:"source_files"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewID produces a kind-prefixed node ID, e.g. "D-4f3a91bc".
func NewID(kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("cannot build ID for kind %q", kind)
	}
	suffix, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", err
	}
	return kind.Prefix() + suffix, nil
}

// Text returns the primary text of the node: the kind-specific fields
// joined in declaration order. Embeddings, fingerprints and keyword
// matching all operate on this value.
func (n *Node) Text() string {
	var parts []string
	switch n.Kind {
	case KindDecision:
		parts = []string{n.Description, n.Rationale}
	case KindPattern:
		parts = []string{n.Name, n.Implementation, n.Context}
	case KindFailure:
		parts = []string{n.Attempt, n.ReasonFailed, n.LessonLearned}
	default:
		return ""
	}

	joined := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			joined = append(joined, p)
		}
	}
	return strings.Join(joined, " ")
}

// Title returns the short display form of the node, used when resolving
// explicit references by leading words.
func (n *Node) Title() string {
	switch n.Kind {
	case KindDecision:
		return strings.TrimSpace(n.Description)
	case KindPattern:
		return strings.TrimSpace(n.Name)
	case KindFailure:
		return strings.TrimSpace(n.Attempt)
	default:
		return ""
	}
}

// Validate checks that the node carries an ID, a known kind and at least
// one non-empty primary text field.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node has no ID")
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("node %s has unknown kind %q", n.ID, n.Kind)
	}
	if n.Text() == "" {
		return fmt.Errorf("node %s has no content", n.ID)
	}
	return nil
}

// AddSourceFile appends file to SourceFiles unless it is already present.
func (n *Node) AddSourceFile(file string) {
	if file == "" {
		return
	}
	for _, existing := range n.SourceFiles {
		if existing == file {
			return
		}
	}
	n.SourceFiles = append(n.SourceFiles, file)
}
