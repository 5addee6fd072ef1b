package handlers

import (
	"io"
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
)

// maxQuizSize bounds the TOML body accepted by ValidateQuiz.
const maxQuizSize = 1 << 20

type ValidateHandler struct {
	BaseHandler
	validator *validator.QuizValidator
}

// NewValidateHandler expects a lightweight validator. Programs are never
// compiled on behalf of HTTP clients.
func NewValidateHandler(v *validator.QuizValidator, logger utils.Logger) *ValidateHandler {
	return &ValidateHandler{
		BaseHandler: NewBaseHandler(logger),
		validator:   v,
	}
}

// ValidateQuiz checks a TOML quiz sent as the raw request body. Every
// request gets its own id set, so resubmitting a file is not a duplicate.
// @Router /validate [post]
func (h *ValidateHandler) ValidateQuiz(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxQuizSize+1))
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Failed to read quiz", err)
		return
	}
	if len(body) > maxQuizSize {
		h.RespondWithError(c, http.StatusRequestEntityTooLarge, "Quiz is too large", nil)
		return
	}

	name := c.DefaultQuery("name", "quiz.toml")
	report, err := h.validator.Fresh().Validate(c.Request.Context(), name, string(body))
	if err != nil {
		h.RespondWithError(c, http.StatusInternalServerError, "Failed to validate quiz", err)
		return
	}

	status := http.StatusOK
	if report.HasErrors() {
		status = http.StatusUnprocessableEntity
		h.LogWarn(c, "Quiz failed validation", "quiz", name, "errors", len(report.Errors()))
	}
	c.JSON(status, report)
}
