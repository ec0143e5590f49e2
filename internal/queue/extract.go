package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lorekeep/lorekeep/internal/storage"
	"github.com/lorekeep/lorekeep/internal/util"
	"github.com/lorekeep/lorekeep/pkg/extract"
	"github.com/lorekeep/lorekeep/pkg/leaselock"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

const extractionLockKey = "extraction_run"

// ProcessExtractJob runs the relationship extraction pipeline. Runs are
// serialized across workers through a database lease; when another
// worker holds the lease the job is dropped, since the running
// extraction already covers the graph state this job asked about.
func (h *Handler) ProcessExtractJob(ctx context.Context, body []byte) error {
	var msg ExtractJobMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("parsing extract job: %w", err)
	}

	opts := extract.Options{
		Mode:              extract.Mode(msg.Mode),
		SemanticThreshold: msg.SemanticThreshold,
		EnhanceWithLLM:    msg.EnhanceWithLLM,
		StatePath:         util.GetEnvString("EXTRACT_STATE_PATH", "data/extract_state.json"),
		ReportPath:        util.GetEnvString("EXTRACT_REPORT_PATH", "data/extract_report.json"),
	}
	pipeline := extract.NewPipeline(h.Store, h.Embedder, h.Completer, h.Breaker, opts)

	var report *extract.Report
	run := func(ctx context.Context) error {
		var err error
		report, err = pipeline.Run(ctx)
		return err
	}

	if h.Locks != nil {
		err := h.Locks.WithLease(ctx, extractionLockKey, leaselock.Options{}, run)
		if errors.Is(err, leaselock.ErrBusy) {
			logger.Warn("[Queue] Extraction already running elsewhere, dropping job", "correlationId", msg.CorrelationID)
			return nil
		}
		if err != nil {
			return err
		}
	} else if err := run(ctx); err != nil {
		return err
	}

	reportKey := h.archiveReport(ctx, report)

	completed := ExtractCompletedMsg{
		CorrelationID:     msg.CorrelationID,
		Mode:              string(report.Mode),
		NodesProcessed:    report.Statistics.NodesProcessed,
		TotalEdgesCreated: report.Statistics.TotalEdgesCreated,
		Connectivity:      report.Statistics.ConnectivityPercentage,
		ReportKey:         reportKey,
	}
	payload, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("encoding completion event: %w", err)
	}
	if h.Channel != nil {
		if err := PublishTopic(h.Channel, "extract.completed", payload); err != nil {
			logger.Error("[Queue] Failed to publish completion event", "err", err)
		}
	}

	return nil
}

// archiveReport uploads the report to S3 and returns its key. Archival
// is best effort; the local report file already exists.
func (h *Handler) archiveReport(ctx context.Context, report *extract.Report) string {
	if h.S3 == nil || report == nil {
		return ""
	}
	raw, err := json.Marshal(report)
	if err != nil {
		logger.Error("[Queue] Failed to encode report for archival", "err", err)
		return ""
	}
	key, err := storage.ArchiveReport(ctx, h.S3, time.Now(), raw)
	if err != nil {
		logger.Error("[Queue] Failed to archive report", "err", err)
		return ""
	}
	logger.Info("[Queue] Archived extraction report", "key", key)

	retention := int(util.GetEnvNumeric("REPORT_RETENTION", 30))
	pruned, err := storage.PruneReports(ctx, h.S3, retention)
	if err != nil {
		logger.Error("[Queue] Failed to prune old reports", "err", err)
	} else if pruned > 0 {
		logger.Info("[Queue] Pruned old reports", "count", pruned, "keep", retention)
	}
	return key
}
