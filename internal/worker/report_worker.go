package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/the-outlaw-004/medai-backend/internal/analyze"
	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/redact"
	"github.com/the-outlaw-004/medai-backend/internal/service"
	"github.com/the-outlaw-004/medai-backend/internal/websocket"
)

// TextExtractor is the extraction stage as the worker sees it.
type TextExtractor interface {
	Extract(ctx context.Context, path, declaredType string) (string, error)
}

// ReportFinalizer is the persistence slice the worker needs.
type ReportFinalizer interface {
	Finalize(ctx context.Context, id uuid.UUID, extractedText string, summary json.RawMessage) error
}

// ReportWorker drives one dequeued job through
// extract -> redact -> analyze -> persist.
//
// Failure policy per stage:
//
//	payload validation  dead-letter (no retry can fix a malformed payload)
//	extract             fatal, returned to the queue for retry/backoff
//	redact              pure, does not fail
//	analyze             absorbed, an error marker is stored instead
//	persist             fatal, returned to the queue for retry/backoff
type ReportWorker struct {
	store     ReportFinalizer
	extractor TextExtractor
	analyzer  analyze.Analyzer
	hub       *websocket.Hub
}

func NewReportWorker(store ReportFinalizer, extractor TextExtractor, analyzer analyze.Analyzer, hub *websocket.Hub) *ReportWorker {
	return &ReportWorker{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		hub:       hub,
	}
}

// ProcessTask handles one delivery of a report:process task. Returning an
// error hands the job back to the queue; asynq retries with backoff and
// archives it after the retry budget is spent. Every stage tolerates
// re-execution: the only write is the final idempotent update.
func (w *ReportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := service.ValidateJobPayload(t.Payload())
	if err != nil {
		log.Printf("Rejecting malformed report job: %v", err)
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	reportID := payload.ReportID.String()
	log.Printf("Processing report %s (attempt for file %s)", reportID, payload.FilePath)

	// Extraction failure is fatal to the attempt; the row stays pending.
	w.broadcastStage(reportID, "extracting")
	text, err := w.extractor.Extract(ctx, payload.FilePath, payload.FileType)
	if err != nil {
		w.broadcastError(reportID, "EXTRACTION_FAILED", err.Error())
		return fmt.Errorf("extract report %s: %w", reportID, err)
	}

	// Redaction must complete before the text reaches any network call.
	w.broadcastStage(reportID, "redacting")
	redacted := redact.Redact(text)

	w.broadcastStage(reportID, "analyzing")
	summary, err := w.analyzer.Analyze(ctx, redacted)
	if err != nil {
		// Non-fatal: keep the extraction work and record the failure.
		log.Printf("Analysis failed for report %s: %v", reportID, err)
		marker, _ := json.Marshal(model.SummaryError{Error: "AI analysis failed"})
		summary = marker
	}

	w.broadcastStage(reportID, "persisting")
	if err := w.store.Finalize(ctx, payload.ReportID, redacted, summary); err != nil {
		w.broadcastError(reportID, "PERSISTENCE_FAILED", err.Error())
		return fmt.Errorf("finalize report %s: %w", reportID, err)
	}

	w.broadcastComplete(reportID)
	log.Printf("Report %s completed", reportID)
	return nil
}

func (w *ReportWorker) broadcastStage(reportID, stage string) {
	if w.hub != nil {
		w.hub.BroadcastStage(reportID, stage)
	}
}

func (w *ReportWorker) broadcastError(reportID, code, message string) {
	if w.hub != nil {
		w.hub.BroadcastError(reportID, code, message)
	}
}

func (w *ReportWorker) broadcastComplete(reportID string) {
	if w.hub != nil {
		w.hub.BroadcastComplete(reportID, nil)
	}
}
