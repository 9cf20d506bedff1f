package middlewares

import (
	"bitbucket.org/mmhealthfocus/bbms_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIdHeader = "X-Request-Id"

// RequestIdMiddleware tags every request with a correlation id, honoring one
// supplied by the caller, and echoes it back in the response headers.
func RequestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.Request.Header.Get(requestIdHeader)
		if requestId == "" {
			requestId = uuid.New().String()
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), requestId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(requestIdHeader, requestId)
		c.Next()
	}
}
