package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lorekeep/lorekeep/pkg/ai"
	"github.com/lorekeep/lorekeep/pkg/breaker"
	"github.com/lorekeep/lorekeep/pkg/fingerprint"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

const minIngestContent = 10

// ProcessIngestJob mines one conversation excerpt for a knowledge node.
// Model extraction is preferred; when the breaker is open or the model
// fails, the keyword fallback takes over so ingestion keeps moving.
// Duplicate content is folded into the existing node instead of
// creating a second one.
func (h *Handler) ProcessIngestJob(ctx context.Context, body []byte) error {
	var msg IngestJobMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("parsing ingest job: %w", err)
	}

	content := strings.TrimSpace(msg.Content)
	if len(content) < minIngestContent {
		return nil
	}

	if h.Fingerprints != nil && h.Fingerprints.ShouldSkipPattern(content) {
		logger.Debug("[Queue] Skipping repeated boilerplate", "sourceFile", msg.SourceFile)
		return nil
	}

	node := h.extractNode(ctx, content)
	if node == nil {
		return nil
	}

	if h.Fingerprints != nil {
		eval := h.Fingerprints.Evaluate(node.Text(), node.Kind)
		switch eval.Decision {
		case fingerprint.DecisionSkip, fingerprint.DecisionMerge:
			return h.creditExisting(ctx, eval.Match, msg.SourceFile)
		}
	}

	id, err := knowledge.NewID(node.Kind)
	if err != nil {
		return fmt.Errorf("generating node id: %w", err)
	}
	node.ID = id
	node.CreatedAt = time.Now().UTC()
	node.AddSourceFile(msg.SourceFile)
	if err := node.Validate(); err != nil {
		logger.Warn("[Queue] Dropping invalid extraction", "err", err, "sourceFile", msg.SourceFile)
		return nil
	}

	if err := h.Store.CreateNode(ctx, node); err != nil {
		return fmt.Errorf("creating node %s: %w", node.ID, err)
	}

	if h.Fingerprints != nil {
		if err := h.Fingerprints.Register(ctx, node.Text(), node.Kind, node.ID, msg.SourceFile); err != nil {
			logger.Error("[Queue] Failed to persist fingerprint", "node", node.ID, "err", err)
		}
	}

	h.recordCreated(node)
	logger.Info("[Queue] Created node", "id", node.ID, "kind", node.Kind, "sourceFile", msg.SourceFile)
	return nil
}

// extractNode tries the model first and falls back to keyword patterns.
// A nil return means the excerpt held nothing worth keeping.
func (h *Handler) extractNode(ctx context.Context, content string) *knowledge.Node {
	if h.Completer != nil && h.Breaker != nil {
		var extraction *ai.KnowledgeExtraction
		err := h.Breaker.Do(ctx, func(ctx context.Context) error {
			var callErr error
			extraction, callErr = ai.CallExtractKnowledge(ctx, h.Completer, content)
			return callErr
		})
		switch {
		case errors.Is(err, breaker.ErrOpen):
			logger.Warn("[Queue] Model extraction short-circuited, using keyword fallback")
		case err != nil:
			logger.Warn("[Queue] Model extraction failed, using keyword fallback", "err", err)
		default:
			node, convErr := extraction.Node()
			if convErr != nil {
				logger.Warn("[Queue] Discarding malformed extraction", "err", convErr)
			} else if node != nil {
				return node
			} else {
				// The model looked and found nothing; trust that over
				// the keyword patterns.
				return nil
			}
		}
	}

	if h.Fallback == nil {
		return nil
	}
	return h.Fallback.Extract(content)
}

func (h *Handler) creditExisting(ctx context.Context, match *fingerprint.Entry, sourceFile string) error {
	if match == nil {
		return nil
	}
	if err := h.Fingerprints.RecordDuplicate(ctx, match, sourceFile); err != nil {
		logger.Error("[Queue] Failed to record duplicate", "node", match.NodeID, "err", err)
	}
	if err := h.Store.AppendSourceFile(ctx, match.NodeID, sourceFile); err != nil {
		return fmt.Errorf("crediting node %s: %w", match.NodeID, err)
	}
	logger.Debug("[Queue] Folded duplicate content into existing node", "node", match.NodeID, "sourceFile", sourceFile)
	return nil
}

func (h *Handler) recordCreated(node *knowledge.Node) {
	if h.Checkpoints == nil {
		return
	}
	h.Checkpoints.MarkCompleted(node.ID)

	stats := h.Checkpoints.Stats()
	switch node.Kind {
	case knowledge.KindDecision:
		stats.Decisions++
	case knowledge.KindPattern:
		stats.Patterns++
	case knowledge.KindFailure:
		stats.Failures++
	}
	stats.TotalNodesCreated++
	stats.Timestamp = time.Now().UTC()
	h.Checkpoints.SetStats(stats)

	if saved, err := h.Checkpoints.BatchDone(); err != nil {
		logger.Error("[Queue] Failed to save checkpoint", "err", err)
	} else if saved {
		logger.Debug("[Queue] Checkpoint saved", "completed", h.Checkpoints.CompletedCount())
	}
}
