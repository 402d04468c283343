package handler

import (
	"errors"
	"io"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/the-outlaw-004/medai-backend/internal/middleware"
	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/repository"
	"github.com/the-outlaw-004/medai-backend/internal/service"
	"github.com/the-outlaw-004/medai-backend/pkg/response"
)

// allowedUploadTypes mirrors the upload boundary guarantee: a stored file is
// always one of these declared types, or the type is absent.
var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

type ReportHandler struct {
	service *service.ReportService
	maxSize int64
}

func NewReportHandler(svc *service.ReportService, maxSize int64) *ReportHandler {
	return &ReportHandler{service: svc, maxSize: maxSize}
}

// Upload handles POST /report/upload: stores the file, creates the pending
// row and enqueues the processing job before returning.
func (h *ReportHandler) Upload(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return response.Unauthorized(c, "Invalid user")
	}

	file, err := c.FormFile("report")
	if err != nil {
		return response.ValidationError(c, "No file uploaded", nil)
	}

	if file.Size > h.maxSize {
		return response.ValidationError(c, "File too large", map[string]interface{}{
			"maxSize":  h.maxSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !allowedUploadTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: PDF, PNG, JPEG", map[string]interface{}{
			"contentType": contentType,
		})
	}

	src, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}

	reportID, jobID, err := h.service.CreateFromUpload(c.Context(), userID, data, file.Filename, contentType)
	if err != nil {
		if errors.Is(err, service.ErrQueueUnavailable) {
			// Without a job behind it the pending row can never complete, so
			// the upload itself must fail.
			return response.QueueUnavailable(c, "Report processing queue unavailable, try again later")
		}
		log.Printf("Upload failed: %v", err)
		return response.ServiceError(c, "Failed to store report")
	}

	return response.Created(c, model.UploadReportResponse{
		Message:  "Report uploaded successfully",
		ReportID: reportID,
		JobID:    jobID,
	})
}

// Get handles GET /report/:id
func (h *ReportHandler) Get(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return response.Unauthorized(c, "Invalid user")
	}

	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid report id", nil)
	}

	report, err := h.service.GetReport(c.Context(), reportID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, service.ErrNotOwner) {
			return response.NotFound(c, "Report not found")
		}
		log.Printf("Get report failed: %v", err)
		return response.ServiceError(c, "Failed to load report")
	}

	return response.OK(c, report)
}

// List handles GET /report
func (h *ReportHandler) List(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return response.Unauthorized(c, "Invalid user")
	}

	reports, err := h.service.ListReports(c.Context(), userID)
	if err != nil {
		log.Printf("List reports failed: %v", err)
		return response.ServiceError(c, "Failed to load reports")
	}
	if reports == nil {
		reports = []*model.Report{}
	}

	return response.OK(c, reports)
}

// Reprocess handles POST /report/:id/reprocess — the administrative path for
// reports whose job was dead-lettered and which are stuck pending.
func (h *ReportHandler) Reprocess(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return response.Unauthorized(c, "Invalid user")
	}

	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.ValidationError(c, "Invalid report id", nil)
	}

	jobID, err := h.service.Reprocess(c.Context(), reportID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrNotOwner):
			return response.NotFound(c, "Report not found")
		case errors.Is(err, service.ErrQueueUnavailable):
			return response.QueueUnavailable(c, "Report processing queue unavailable, try again later")
		}
		log.Printf("Reprocess failed: %v", err)
		return response.ServiceError(c, "Failed to reprocess report")
	}

	return response.OK(c, model.ReprocessReportResponse{
		ReportID: reportID,
		JobID:    jobID,
		Status:   "queued",
	})
}

func callerID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(middleware.GetUserID(c))
}
