package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/embed"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	manager  *services.SessionManager
	exporter services.ExportService
}

func NewSessionHandler(manager *services.SessionManager, exporter services.ExportService, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		manager:     manager,
		exporter:    exporter,
	}
}

// SessionResponse is a session id with its current view.
type SessionResponse struct {
	ID   string               `json:"id"`
	View services.SessionView `json:"view"`
}

// SubmitResponse pairs the outcome of a submission with the next view.
type SubmitResponse struct {
	Outcome *services.SubmitOutcome `json:"outcome"`
	View    services.SessionView    `json:"view"`
}

// MountRequest carries the attributes of a quiz placeholder element.
type MountRequest struct {
	Attributes map[string]string `json:"attributes" binding:"required"`
}

type BugReportRequest struct {
	Question *int   `json:"question" binding:"required"`
	Feedback string `json:"feedback"`
}

// CreateSession mounts a session from explicit options
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	h.LogRequest(c, "Creating quiz session")

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	h.create(c, &req)
}

// MountSession mounts a session from the attributes of a placeholder
// @Router /sessions/mount [post]
func (h *SessionHandler) MountSession(c *gin.Context) {
	h.LogRequest(c, "Mounting quiz placeholder")

	var body MountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	req, err := embed.ParsePlaceholder(body.Attributes)
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid quiz placeholder", err, err.Error())
		return
	}
	h.create(c, req)
}

func (h *SessionHandler) create(c *gin.Context, req *services.CreateSessionRequest) {
	managed, err := h.manager.Create(c.Request.Context(), learnerID(c), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{ID: managed.ID, View: managed.Session.View()})
}

// GetSession returns the current view of a session
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SessionResponse{ID: managed.ID, View: managed.Session.View()})
}

// StartSession
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.transition(c, h.manager.Start)
}

// SubmitAnswer scores the current question. A question that asks for an
// explanation needs two submissions.
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}

	form, err := bindForm(c)
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid answer form", err, err.Error())
		return
	}

	outcome, err := h.manager.Submit(c.Request.Context(), managed.ID, form)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SubmitResponse{Outcome: outcome, View: managed.Session.View()})
}

// @Router /sessions/{id}/retry [post]
func (h *SessionHandler) RetrySession(c *gin.Context) {
	h.transition(c, h.manager.Retry)
}

// @Router /sessions/{id}/give-up [post]
func (h *SessionHandler) GiveUp(c *gin.Context) {
	h.transition(c, h.manager.GiveUp)
}

// @Router /sessions/{id}/exit [post]
func (h *SessionHandler) ExitSession(c *gin.Context) {
	h.transition(c, h.manager.Exit)
}

// ReportBug forwards learner feedback about one question
// @Router /sessions/{id}/bug-report [post]
func (h *SessionHandler) ReportBug(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}

	var req BugReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	if err := h.manager.ReportBug(c.Request.Context(), managed.ID, *req.Question, req.Feedback); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusAccepted, "Bug report sent", nil)
}

// GetReview returns the answer review of an ended pass
// @Router /sessions/{id}/review [get]
func (h *SessionHandler) GetReview(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}
	review, err := managed.Session.Review()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// ExportAnswers downloads the recorded answers as xlsx (default) or csv
// @Router /sessions/{id}/export [get]
func (h *SessionHandler) ExportAnswers(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
	switch format {
	case "xlsx":
		data, err = h.exporter.ExportAnswersToExcel(c.Request.Context(), managed.Session)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "csv":
		data, err = h.exporter.ExportAnswersToCSV(c.Request.Context(), managed.Session)
		contentType = "text/csv"
	default:
		h.RespondWithError(c, http.StatusBadRequest, "Unsupported export format", nil, format)
		return
	}
	if err != nil {
		h.RespondWithError(c, http.StatusInternalServerError, "Failed to export answers", err)
		return
	}

	filename := fmt.Sprintf("%s-answers.%s", managed.Session.Name(), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// DeleteSession unmounts a session. Stored progress is kept.
// @Router /sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	managed, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.manager.Delete(c.Request.Context(), managed.ID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) transition(c *gin.Context, fn func(ctx context.Context, id string) error) {
	managed, ok := h.session(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), managed.ID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{ID: managed.ID, View: managed.Session.View()})
}

// session resolves the :id parameter. Sessions of other learners are
// reported as missing.
func (h *SessionHandler) session(c *gin.Context) (*services.ManagedSession, bool) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return nil, false
	}
	managed, err := h.manager.Get(id)
	if err == nil && managed.LearnerID != learnerID(c) {
		err = fmt.Errorf("%w: %s", services.ErrSessionNotFound, id)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return nil, false
	}
	return managed, true
}

func (h *SessionHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, validationErrors)
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		h.RespondWithError(c, http.StatusUnprocessableEntity, businessRuleError.Message, err, map[string]interface{}{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		})
		return
	}

	switch {
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, "Quiz session not found", err)
	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, "Quiz session is closed", err)
	case errors.Is(err, services.ErrUnknownQuestionType):
		h.RespondWithError(c, http.StatusUnprocessableEntity, err.Error(), err)
	case services.IsValidation(err), errors.Is(err, services.ErrBadRequest):
		h.RespondWithError(c, http.StatusBadRequest, err.Error(), err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
