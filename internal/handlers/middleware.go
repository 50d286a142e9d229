package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxUserID is the gin context key holding the authenticated user id.
const ctxUserID = "userId"

const (
	errAuthMissing  = "missing Authorization header"
	errAuthFormat   = "invalid Authorization header format"
	errAuthRejected = "invalid or expired token"
)

// userIdMiddleware guards the device API. Commands reach real hardware, so
// every request needs "Authorization: Bearer <jwt>".
func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		h.denyRequest(c, errAuthMissing, nil)
		return
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		h.denyRequest(c, errAuthFormat, nil)
		return
	}

	userID, err := h.services.ParseToken(token)
	if err != nil {
		h.denyRequest(c, errAuthRejected, err)
		return
	}
	c.Set(ctxUserID, userID)
	c.Next()
}

func (h *Handler) denyRequest(c *gin.Context, msg string, err error) {
	h.log.Infow("api_request_denied", "path", c.FullPath(), "reason", msg, "err", err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
