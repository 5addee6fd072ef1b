package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
)

// HandlerDeps are the services the HTTP API is built on.
type HandlerDeps struct {
	Sessions  *services.SessionManager
	Exporter  services.ExportService
	Telemetry events.Telemetry
	Validator *validator.QuizValidator
	Logger    utils.Logger
}

type HandlerManager struct {
	sessionHandler   *SessionHandler
	telemetryHandler *TelemetryHandler
	validateHandler  *ValidateHandler
	telemetry        events.Telemetry
	ops              *services.ServiceLogger
}

func NewHandlerManager(deps HandlerDeps) *HandlerManager {
	return &HandlerManager{
		sessionHandler:   NewSessionHandler(deps.Sessions, deps.Exporter, deps.Logger),
		telemetryHandler: NewTelemetryHandler(deps.Telemetry, deps.Logger),
		validateHandler:  NewValidateHandler(deps.Validator, deps.Logger),
		telemetry:        deps.Telemetry,
		ops: services.NewServiceLogger(utils.ToSlogLogger(deps.Logger), services.LogConfig{
			Service:   "quiz-service",
			Component: "http",
		}),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(Recovery(hm.telemetry, hm.ops))

	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.CreateSession)
			sessions.POST("/mount", hm.sessionHandler.MountSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.DeleteSession)

			// Quiz flow
			sessions.POST("/:id/start", hm.sessionHandler.StartSession)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/retry", hm.sessionHandler.RetrySession)
			sessions.POST("/:id/give-up", hm.sessionHandler.GiveUp)
			sessions.POST("/:id/exit", hm.sessionHandler.ExitSession)
			sessions.POST("/:id/bug-report", hm.sessionHandler.ReportBug)

			// Results
			sessions.GET("/:id/review", hm.sessionHandler.GetReview)
			sessions.GET("/:id/export", hm.sessionHandler.ExportAnswers)
		}

		v1.POST("/telemetry/:event", hm.telemetryHandler.IngestEvent)
		v1.POST("/validate", hm.validateHandler.ValidateQuiz)
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quiz-service",
	})
}
