package handlers

import (
	"net/http"
	"strings"

	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userId"
	ctxCaller = "caller"
)

// userIdMiddleware resolves the bearer token into a caller and stores it on the context.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		abortUnauthorized(c, "missing Authorization header")
		return
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		abortUnauthorized(c, "invalid Authorization header format")
		return
	}

	caller, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("token_rejected", "path", c.FullPath(), "err", err)
		}
		abortUnauthorized(c, "invalid or expired token")
		return
	}

	c.Set(ctxUserID, caller.UserID)
	c.Set(ctxCaller, caller)
	c.Next()
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// callerFrom returns the authenticated caller. Without the middleware it is an
// anonymous caller with no rights.
func callerFrom(c *gin.Context) service.Caller {
	if v, ok := c.Get(ctxCaller); ok {
		if caller, ok := v.(service.Caller); ok {
			return caller
		}
	}
	return service.Caller{}
}
