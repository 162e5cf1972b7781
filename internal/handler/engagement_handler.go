package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/middleware"
	"github.com/stemsi/diagnostic-gateway/internal/response"
	"github.com/stemsi/diagnostic-gateway/internal/service"
)

// EngagementHandler serves engagement overviews, reports and the caller's
// diagnostics still being processed.
type EngagementHandler struct {
	engagementService *service.EngagementService
	log               zerolog.Logger
}

// NewEngagementHandler creates a new EngagementHandler.
func NewEngagementHandler(engagementService *service.EngagementService, log zerolog.Logger) *EngagementHandler {
	return &EngagementHandler{
		engagementService: engagementService,
		log:               log.With().Str("component", "engagement_handler").Logger(),
	}
}

// GetSummary godoc
// GET /api/v1/engagements/:engagement_id/summary
func (h *EngagementHandler) GetSummary(c *gin.Context) {
	claims := middleware.GetClaims(c)
	engagementID := c.Param("engagement_id")
	if !middleware.ValidID(engagementID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.engagementService.Summary(c.Request.Context(), claims.UserID, engagementID)
	if err != nil {
		status, code := upstreamError(err, response.ErrNotFound)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("engagement_id", engagementID).Msg("Get engagement summary failed")
		}
		response.Fail(c, status, code)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"engagement": summary})
}

// DownloadReport godoc
// GET /api/v1/diagnostics/:id/report
// Streams the AI report PDF back with the backend's filename.
func (h *EngagementHandler) DownloadReport(c *gin.Context) {
	diagnosticID := c.Param("id")
	if !middleware.ValidID(diagnosticID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.engagementService.Report(c.Request.Context(), diagnosticID)
	if err != nil {
		status, code := upstreamError(err, response.ErrReportNotFound)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("diagnostic_id", diagnosticID).Msg("Download report failed")
		}
		response.Fail(c, status, code)
		return
	}

	contentType := report.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, contentType, report.Body)
}

// ListPendingJobs godoc
// GET /api/v1/diagnostic-jobs
// Lists the caller's submitted diagnostics that have not completed yet.
func (h *EngagementHandler) ListPendingJobs(c *gin.Context) {
	claims := middleware.GetClaims(c)

	jobs, err := h.engagementService.PendingJobs(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("List pending jobs failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"jobs": jobs})
}

func upstreamError(err error, notFound response.ErrCode) (int, response.ErrCode) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
