package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/the-outlaw-004/medai-backend/internal/config"
	"github.com/the-outlaw-004/medai-backend/internal/model"
)

const (
	TaskTypeReportProcess = "report:process"
	QueueReports          = "reports"
)

// ErrQueueUnavailable is returned when the broker rejects an enqueue. The
// upload endpoint must surface this as a failed upload: a pending report with
// no job behind it would otherwise be stuck forever.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// ReportStore is the persistence slice the producer side needs.
type ReportStore interface {
	CreatePending(ctx context.Context, userID uuid.UUID, filePath string) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Report, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Report, error)
}

// TaskEnqueuer is the slice of asynq.Client the service needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReportService owns the producer half of the pipeline: storing the uploaded
// file, creating the pending row and enqueueing the processing job.
type ReportService struct {
	store     ReportStore
	tasks     TaskEnqueuer
	uploadCfg config.UploadConfig
	workerCfg config.WorkerConfig
}

func NewReportService(store ReportStore, tasks TaskEnqueuer, uploadCfg config.UploadConfig, workerCfg config.WorkerConfig) *ReportService {
	return &ReportService{
		store:     store,
		tasks:     tasks,
		uploadCfg: uploadCfg,
		workerCfg: workerCfg,
	}
}

// CreateFromUpload stores the file on disk under a fresh name, inserts the
// pending report row and enqueues the processing job. The file is fully
// written before the job referencing it exists.
func (s *ReportService) CreateFromUpload(ctx context.Context, userID uuid.UUID, data []byte, originalName, contentType string) (uuid.UUID, string, error) {
	if err := os.MkdirAll(s.uploadCfg.Dir, 0o755); err != nil {
		return uuid.Nil, "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.New().String() + filepath.Ext(originalName)
	filePath := filepath.Join(s.uploadCfg.Dir, name)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return uuid.Nil, "", fmt.Errorf("write upload: %w", err)
	}

	reportID, err := s.store.CreatePending(ctx, userID, filePath)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("create pending report: %w", err)
	}

	jobID, err := s.enqueue(ctx, model.ReportJobPayload{
		ReportID: reportID,
		UserID:   userID,
		FilePath: filePath,
		FileType: contentType,
	})
	if err != nil {
		return reportID, "", err
	}

	return reportID, jobID, nil
}

// Reprocess re-enqueues a report's job. This is the explicit administrative
// path for reports whose original job was dead-lettered.
func (s *ReportService) Reprocess(ctx context.Context, reportID, userID uuid.UUID) (string, error) {
	report, err := s.store.GetByID(ctx, reportID)
	if err != nil {
		return "", err
	}
	if report.UserID != userID {
		return "", ErrNotOwner
	}

	// The original declared type is not persisted; fall back to the file
	// extension, with the PDF path as the default.
	fileType := mime.TypeByExtension(filepath.Ext(report.FilePath))

	return s.enqueue(ctx, model.ReportJobPayload{
		ReportID: report.ID,
		UserID:   report.UserID,
		FilePath: report.FilePath,
		FileType: fileType,
	})
}

// ErrNotOwner is returned when a caller touches another user's report.
var ErrNotOwner = errors.New("report does not belong to caller")

func (s *ReportService) GetReport(ctx context.Context, reportID, userID uuid.UUID) (*model.Report, error) {
	report, err := s.store.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, ErrNotOwner
	}
	return report, nil
}

func (s *ReportService) ListReports(ctx context.Context, userID uuid.UUID) ([]*model.Report, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *ReportService) enqueue(ctx context.Context, payload model.ReportJobPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	info, err := s.tasks.EnqueueContext(ctx, asynq.NewTask(TaskTypeReportProcess, data),
		asynq.Queue(QueueReports),
		asynq.MaxRetry(s.workerCfg.MaxRetry),
		asynq.Timeout(time.Duration(s.workerCfg.TimeoutSec)*time.Second),
		asynq.Retention(time.Duration(s.workerCfg.RetentionHours)*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return info.ID, nil
}

// ValidateJobPayload rejects malformed job payloads at dequeue time so a
// stage never crashes on missing fields.
func ValidateJobPayload(data []byte) (*model.ReportJobPayload, error) {
	var payload model.ReportJobPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal job payload: %w", err)
	}
	if payload.ReportID == uuid.Nil {
		return nil, errors.New("job payload missing reportId")
	}
	if payload.UserID == uuid.Nil {
		return nil, errors.New("job payload missing userId")
	}
	if payload.FilePath == "" {
		return nil, errors.New("job payload missing filePath")
	}
	return &payload, nil
}
