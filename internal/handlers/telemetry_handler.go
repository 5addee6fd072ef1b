package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// TelemetryHandler accepts events from pages that run quizzes themselves
// and forwards them to the configured sink.
type TelemetryHandler struct {
	BaseHandler
	telemetry events.Telemetry
	validate  *validator.Validate
}

func NewTelemetryHandler(telemetry events.Telemetry, logger utils.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		BaseHandler: NewBaseHandler(logger),
		telemetry:   telemetry,
		validate:    validator.New(),
	}
}

type answersPayload struct {
	QuizName string          `json:"quizName" validate:"required"`
	QuizHash string          `json:"quizHash" validate:"required"`
	Answers  json.RawMessage `json:"answers" validate:"required"`
	Attempt  *int            `json:"attempt" validate:"required,min=0"`
}

type bugPayload struct {
	QuizName string `json:"quizName" validate:"required"`
	Question *int   `json:"question" validate:"required,min=0"`
	Feedback string `json:"feedback"`
}

type runtimeErrorPayload struct {
	Error string `json:"error" validate:"required"`
}

// IngestEvent
// @Router /telemetry/{event} [post]
func (h *TelemetryHandler) IngestEvent(c *gin.Context) {
	eventType := events.EventType(c.Param("event"))

	var (
		payload interface{}
		forward func() any
	)
	switch eventType {
	case events.EventAnswers:
		p := &answersPayload{}
		payload = p
		forward = func() any { return p }
	case events.EventBug:
		p := &bugPayload{}
		payload = p
		forward = func() any {
			return events.BugEvent{QuizName: p.QuizName, Question: *p.Question, Feedback: p.Feedback}
		}
	case events.EventRuntimeError:
		p := &runtimeErrorPayload{}
		payload = p
		forward = func() any { return events.RuntimeErrorEvent{Error: p.Error} }
	default:
		h.RespondWithError(c, http.StatusNotFound, "Unknown telemetry event", nil, string(eventType))
		return
	}

	if err := c.ShouldBindJSON(payload); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid telemetry payload", err, err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid telemetry payload", err, err.Error())
		return
	}

	h.telemetry.Log(c.Request.Context(), eventType, forward())
	c.Status(http.StatusAccepted)
}
