package handlers

import (
	"net/http"

	"tasmota_mqtt/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errCommandFailed = "command failed"
	errSaveRelay     = "failed to save relay"
	errSaveSettings  = "failed to save settings"
	errGetStatus     = "failed to load status"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Run a relay command
// @Description  turnOn, turnOff, toggleRelay, checkRelay, checkStatus, removeRelay,
// @Description  enableAutomaticShutdown, disableAutomaticShutdown, abortAutomaticShutdown
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        body  body      service.CommandRequest  true  "Command"
// @Success      200   {object}  service.CommandResult
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/command [post]
// @Security     BearerAuth
func (h *Handler) command(c *gin.Context) {
	var req service.CommandRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	res, err := h.services.Execute(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		h.respondError(c, errCommandFailed, "relay_command_failed", err,
			"command", req.Command, "topic", req.Topic, "relayN", req.RelayN)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary      Add or edit a relay
// @Description  Set previous to rename a relay. The confirmed state of an existing relay is kept.
// @Tags         relays
// @Accept       json
// @Produce      json
// @Param        body  body      service.RelayRequest  true  "Relay"
// @Success      200   {object}  models.Relay
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /api/v1/relays [put]
// @Security     BearerAuth
func (h *Handler) upsertRelay(c *gin.Context) {
	var req service.RelayRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	r, err := h.services.UpsertRelay(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		h.respondError(c, errSaveRelay, "relay_save_failed", err, "topic", req.Relay.Topic)
		return
	}
	c.JSON(http.StatusOK, r)
}

// @Summary      Get settings
// @Tags         settings
// @Produce      json
// @Success      200  {object}  models.Settings
// @Router       /api/v1/settings [get]
// @Security     BearerAuth
func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Settings(c.Request.Context()))
}

// @Summary      Update settings
// @Description  Fields left out are unchanged.
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        body  body      service.SettingsPatch  true  "Patch"
// @Success      200   {object}  models.Settings
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /api/v1/settings [put]
// @Security     BearerAuth
func (h *Handler) updateSettings(c *gin.Context) {
	var p service.SettingsPatch
	if ok := h.bindJSONOrBadRequest(c, &p); !ok {
		return
	}
	s, err := h.services.UpdateSettings(c.Request.Context(), callerFrom(c), p)
	if err != nil {
		h.respondError(c, errSaveSettings, "settings_update_failed", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Relay, idle engine and printer status
// @Tags         relays
// @Produce      json
// @Success      200  {object}  models.Status
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/status [get]
// @Security     BearerAuth
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.GetStatus(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "status_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
