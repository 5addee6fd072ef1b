package handlers

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/gin-gonic/gin"
)

// RuntimeErrorMessage replaces the response of a request that panicked.
const RuntimeErrorMessage = "The quiz component encountered a runtime error! Sorry for " +
	"the inconvenience. The error has been reported to the developers, and we will try to fix it soon."

// Recovery turns a panic into a static fallback response. Each panic is
// reported to telemetry exactly once, then logged with its stack.
func Recovery(telemetry events.Telemetry, ops *services.ServiceLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		stack := debug.Stack()
		telemetry.Log(ctx, events.EventRuntimeError, events.RuntimeErrorEvent{
			Error: fmt.Sprintf("%v\n%s", recovered, stack),
		})
		ops.LogRecovery(ctx, c.FullPath(), recovered, stack)

		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Message: RuntimeErrorMessage,
			Code:    string(events.EventRuntimeError),
		})
	})
}
