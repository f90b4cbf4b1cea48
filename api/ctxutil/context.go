package ctxutil

import (
	"context"

	"paytx/api/response"
	"paytx/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestContext returns the request's context carrying the request id, even
// when RequestIDMiddleware is not installed.
func RequestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if logger.RequestIDFromContext(ctx) == "" {
		if id := response.GetRequestID(c); id != "" {
			ctx = logger.ContextWithRequestID(ctx, id)
		}
	}
	return ctx
}
