package handlers

import (
	"net/http"

	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
)

// hostEventRequest is a lifecycle event forwarded by the printer host.
type hostEventRequest struct {
	Event   string         `json:"event" binding:"required" example:"PrintStarted"`
	Payload map[string]any `json:"payload,omitempty"`
}

type gcodeRequest struct {
	Line string `json:"line" binding:"required" example:"M80 plug1"`
}

// requireControl aborts with 403 unless the caller may switch relays.
func (h *Handler) requireControl(c *gin.Context) bool {
	if !callerFrom(c).CanControl {
		h.respondError(c, "", "host_call_denied", service.ErrPermissionDenied, "path", c.FullPath())
		return false
	}
	return true
}

// @Summary      Deliver a host event
// @Description  ClientOpened, PrintStarted, Error, MovieRendering, MovieDone, MovieFailed, Connected, Upload
// @Tags         host
// @Accept       json
// @Produce      json
// @Param        body  body      hostEventRequest  true  "Event"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /api/v1/events [post]
// @Security     BearerAuth
func (h *Handler) hostEvent(c *gin.Context) {
	if !h.requireControl(c) {
		return
	}
	var req hostEventRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	if err := h.services.HandleEvent(c.Request.Context(), req.Event, req.Payload); err != nil {
		h.logAndJSONError(c, http.StatusBadRequest, err.Error(), "host_event_failed", err, "event", req.Event)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Intercept a G-code line
// @Description  forward=false means the line was a relay directive and must not reach the printer.
// @Tags         host
// @Accept       json
// @Produce      json
// @Param        body  body      gcodeRequest  true  "G-code line"
// @Success      200   {object}  map[string]bool
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /api/v1/gcode [post]
// @Security     BearerAuth
func (h *Handler) gcode(c *gin.Context) {
	if !h.requireControl(c) {
		return
	}
	var req gcodeRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"forward": h.services.InterceptGcode(req.Line)})
}
