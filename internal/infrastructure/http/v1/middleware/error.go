package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cardvault/internal/core/apperror"
	"cardvault/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body gin.H

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": c.GetString("request_id"),
				},
			}
		}

		failIdempotency(c, status, body)
		c.JSON(status, body)
	}
}
