package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportStatus is the lifecycle state of a report row. The pipeline only ever
// moves a report from pending to completed; a report stuck in pending signals
// a dead-lettered job that needs operator attention.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusCompleted ReportStatus = "completed"
)

// Report is the persisted result of one uploaded medical report.
// The pipeline owns ExtractedText, AISummary and Status; FilePath, UserID and
// CreatedAt are written once at upload time and never touched again.
type Report struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	FilePath      string          `json:"filePath"`
	Status        ReportStatus    `json:"status"`
	ExtractedText *string         `json:"extractedText,omitempty"`
	AISummary     json.RawMessage `json:"aiSummary,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ReportJobPayload is the immutable snapshot enqueued per upload. The worker
// must not assume the report row still matches it beyond the ID join key.
type ReportJobPayload struct {
	ReportID uuid.UUID `json:"reportId"`
	UserID   uuid.UUID `json:"userId"`
	FilePath string    `json:"filePath"`
	FileType string    `json:"fileType"`
}

// Measurement is one named clinical value in an AI summary.
type Measurement struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Status string  `json:"status"`
}

// ReportSummary is the structured output of the analysis stage.
type ReportSummary struct {
	PatientName string       `json:"patient_name"`
	BloodSugar  *Measurement `json:"blood_sugar,omitempty"`
	Cholesterol *Measurement `json:"cholesterol,omitempty"`
}

// SummaryError is stored in place of a ReportSummary when the analysis stage
// failed; the report still completes with the extraction work preserved.
type SummaryError struct {
	Error string `json:"error"`
}

// UploadReportResponse is returned by POST /report/upload.
type UploadReportResponse struct {
	Message  string    `json:"message"`
	ReportID uuid.UUID `json:"reportId"`
	JobID    string    `json:"jobId"`
}

// ReprocessReportResponse is returned by POST /report/:id/reprocess.
type ReprocessReportResponse struct {
	ReportID uuid.UUID `json:"reportId"`
	JobID    string    `json:"jobId"`
	Status   string    `json:"status"`
}
