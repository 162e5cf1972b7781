package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/diagnostic-gateway/internal/backend"
	"github.com/stemsi/diagnostic-gateway/internal/middleware"
	"github.com/stemsi/diagnostic-gateway/internal/model"
	"github.com/stemsi/diagnostic-gateway/internal/repository"
	"github.com/stemsi/diagnostic-gateway/internal/response"
	"github.com/stemsi/diagnostic-gateway/internal/service"
	"github.com/stemsi/diagnostic-gateway/internal/validator"
)

// SurveyHandler drives a caller's diagnostic survey session.
type SurveyHandler struct {
	surveyService *service.SurveyService
}

// NewSurveyHandler creates a new SurveyHandler.
func NewSurveyHandler(surveyService *service.SurveyService) *SurveyHandler {
	return &SurveyHandler{surveyService: surveyService}
}

// GetSchema godoc
// GET /api/v1/survey/schema
// Returns the survey definition the client renders pages from.
func (h *SurveyHandler) GetSchema(c *gin.Context) {
	schema := h.surveyService.Schema()
	response.Success(c, http.StatusOK, gin.H{
		"survey":      schema.Document(),
		"total_pages": schema.PageCount(),
	})
}

// GetSurvey godoc
// GET /api/v1/engagements/:engagement_id/survey
// Loads the engagement's diagnostic, restores unsaved answers and returns the
// current page.
func (h *SurveyHandler) GetSurvey(c *gin.Context) {
	key, ok := middleware.GetSessionKey(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.surveyService.Open(c.Request.Context(), key)
	h.respond(c, view, err)
}

// RecordAnswer godoc
// PUT /api/v1/engagements/:engagement_id/survey/answers
// Stores one answer locally. Nothing is sent to the backend until the page
// is saved.
func (h *SurveyHandler) RecordAnswer(c *gin.Context) {
	key, ok := middleware.GetSessionKey(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.surveyService.RecordAnswer(c.Request.Context(), key, req.Name, req.Value)
	h.respond(c, view, err)
}

// SavePage godoc
// POST /api/v1/engagements/:engagement_id/survey/save
// Persists the visible answers of the current page.
func (h *SurveyHandler) SavePage(c *gin.Context) {
	h.run(c, h.surveyService.SavePage)
}

// NextPage godoc
// POST /api/v1/engagements/:engagement_id/survey/next
// Saves the current page and moves forward.
func (h *SurveyHandler) NextPage(c *gin.Context) {
	h.run(c, h.surveyService.Next)
}

// PreviousPage godoc
// POST /api/v1/engagements/:engagement_id/survey/previous
// Moves back one page without saving.
func (h *SurveyHandler) PreviousPage(c *gin.Context) {
	h.run(c, h.surveyService.Previous)
}

// Submit godoc
// POST /api/v1/engagements/:engagement_id/survey/submit
// Sends all answers and hands the diagnostic off for AI processing.
func (h *SurveyHandler) Submit(c *gin.Context) {
	h.run(c, h.surveyService.Submit)
}

func (h *SurveyHandler) run(c *gin.Context, op func(context.Context, repository.SessionKey) (model.SessionView, error)) {
	key, ok := middleware.GetSessionKey(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := op(c.Request.Context(), key)
	h.respond(c, view, err)
}

// respond writes the session view. On failure the view is still returned so
// the client can keep showing unsaved answers.
func (h *SurveyHandler) respond(c *gin.Context, view model.SessionView, err error) {
	if err == nil {
		response.Success(c, http.StatusOK, gin.H{"session": view})
		return
	}

	status, code := surveyError(err)
	if view.State == "" {
		response.Fail(c, status, code)
		return
	}
	response.FailWithData(c, status, code, gin.H{"session": view})
}

// surveyError maps session and backend errors onto HTTP status and code.
func surveyError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	case errors.Is(err, service.ErrDiagnosticNotFound):
		return http.StatusNotFound, response.ErrDiagnosticNotFound
	case errors.Is(err, service.ErrUnknownField):
		return http.StatusBadRequest, response.ErrUnknownField
	case errors.Is(err, service.ErrFirstPage):
		return http.StatusConflict, response.ErrFirstPage
	case errors.Is(err, service.ErrLastPage):
		return http.StatusConflict, response.ErrLastPage
	case errors.Is(err, service.ErrNotLastPage):
		return http.StatusConflict, response.ErrNotLastPage
	case errors.Is(err, service.ErrDiagnosticLocked):
		return http.StatusConflict, response.ErrDiagnosticLocked
	case errors.Is(err, service.ErrSessionNotLoaded):
		return http.StatusConflict, response.ErrSessionNotReady
	case errors.Is(err, backend.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrSaveFailed):
		return http.StatusBadGateway, response.ErrSaveFailed
	case errors.Is(err, service.ErrSubmitFailed):
		return http.StatusBadGateway, response.ErrSubmitFailed
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
