package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/logger"
	"pharos.xyz/statschecker/pkg/response"
)

// Recovery turns a handler panic into the standard 500 error body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.L().Error("panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				response.Abort(c, apperror.New(http.StatusInternalServerError, "Internal server error", fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
