package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sous_vide/internal/connection"
	"sous_vide/internal/device"
	"sous_vide/internal/jobs"
	"sous_vide/internal/service"
)

const errInvalidBodyPref = "invalid body: "

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, connection.ErrInvalidTimeout):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, device.ErrLinkUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, device.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs server-side failures and writes {"error": ...}. Client
// errors are echoed; anything else gets a generic message.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	fields := append([]interface{}{"err", err, "status", code}, kv...)
	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		h.log.Errorw(logKey, fields...)
		msg = "internal error"
	case code >= http.StatusInternalServerError:
		h.log.Errorw(logKey, fields...)
	default:
		h.log.Infow(logKey, fields...)
	}
	c.JSON(code, gin.H{"error": msg})
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}
