package handlers

import (
	"errors"
	"net/http"

	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps service errors to HTTP codes. Client errors carry the error text;
// everything else is reported with fallback.
func statusFor(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrRelayNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrUnknownCommand),
		errors.Is(err, service.ErrInvalidRelay),
		errors.Is(err, service.ErrInvalidSettings),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrInvalidEventType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrTransportUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, fallback
	}
}

func (h *Handler) respondError(c *gin.Context, fallback, logKey string, err error, kv ...interface{}) {
	code, msg := statusFor(err, fallback)
	h.logAndJSONError(c, code, msg, logKey, err, kv...)
}
