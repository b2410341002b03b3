package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/logger"
)

// JSON writes payload with the headers shared by every endpoint.
func JSON(c *gin.Context, code int, payload any) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(code, payload)
}

func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Error standardized error response
func Error(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)
	message := err.Error()

	// Log internal errors, never leak them
	if code == http.StatusInternalServerError {
		logger.L().Error("internal error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "Internal server error"
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Message != "" {
			message = appErr.Message
		}
	}

	JSON(c, code, gin.H{"success": false, "error": message})
}

// Abort is Error followed by c.Abort, for middleware.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
