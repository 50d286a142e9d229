package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

const statusOK = "ok"

// SetTemperatureRequest carries the new set point as decimal text.
type SetTemperatureRequest struct {
	Temperature string `json:"temperature" binding:"required" example:"135.5"`
}

// SetTimerRequest sets the countdown in minutes.
type SetTimerRequest struct {
	Minutes *int `json:"minutes" binding:"required" example:"90"`
}

// SetLEDRequest sets the ring colour. Components are 0..255.
type SetLEDRequest struct {
	R *int `json:"r" binding:"required" example:"255"`
	G *int `json:"g" binding:"required" example:"128"`
	B *int `json:"b" binding:"required" example:"0"`
}

// SetIdleTimeoutRequest sets how long the link may stay unused before it closes.
type SetIdleTimeoutRequest struct {
	Seconds int `json:"seconds" binding:"required" example:"300"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Read temperatures
// @Description  Queries the bath temperature, the set point and the unit.
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.TemperatureReading
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/temp [get]
// @Security     BearerAuth
func (h *Handler) readTemperature(c *gin.Context) {
	reading, err := h.services.Device.ReadTemperature(c.Request.Context())
	if err != nil {
		h.respondError(c, "device_read_temp_failed", err)
		return
	}
	c.JSON(http.StatusOK, reading)
}

// @Summary      Set temperature
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      SetTemperatureRequest  true  "Set point"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/device/temp [post]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req SetTemperatureRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	reply, err := h.services.Device.SetTemperature(c.Request.Context(), req.Temperature)
	if err != nil {
		h.respondError(c, "device_set_temp_failed", err, "temperature", req.Temperature)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": reply})
}

// @Summary      Device status (live)
// @Description  Queries the device now and refreshes the cached status. Unreachable fields read "unknown".
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.DeviceStatus
// @Router       /api/v1/device/status [get]
// @Security     BearerAuth
func (h *Handler) refreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.RefreshStatus(c.Request.Context()))
}

// @Summary      Device status (cached)
// @Description  Last known status without touching the device.
// @Tags         device
// @Produce      json
// @Success      200  {object}  models.DeviceStatus
// @Router       /api/v1/device/status/background [get]
// @Security     BearerAuth
func (h *Handler) cachedStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.GetStatus(c.Request.Context()))
}

// @Summary      Start heating
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/start [post]
// @Security     BearerAuth
func (h *Handler) startDevice(c *gin.Context) {
	h.replyOrError(c, "device_start_failed", h.services.Device.Start)
}

// @Summary      Stop heating
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/device/stop [post]
// @Security     BearerAuth
func (h *Handler) stopDevice(c *gin.Context) {
	h.replyOrError(c, "device_stop_failed", h.services.Device.Stop)
}

// @Summary      Read timer
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/device/timer [get]
// @Security     BearerAuth
func (h *Handler) readTimer(c *gin.Context) {
	h.replyOrError(c, "device_read_timer_failed", h.services.Device.ReadTimer)
}

// @Summary      Set timer
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      SetTimerRequest  true  "Minutes"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/device/timer [post]
// @Security     BearerAuth
func (h *Handler) setTimer(c *gin.Context) {
	var req SetTimerRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	reply, err := h.services.Device.SetTimer(c.Request.Context(), *req.Minutes)
	if err != nil {
		h.respondError(c, "device_set_timer_failed", err, "minutes", *req.Minutes)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": reply})
}

// @Summary      Start timer
// @Description  Starts the device first, then the countdown.
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/device/timer/start [post]
// @Security     BearerAuth
func (h *Handler) startTimer(c *gin.Context) {
	h.replyOrError(c, "device_start_timer_failed", h.services.Device.StartTimer)
}

// @Summary      Stop timer
// @Tags         device
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /api/v1/device/timer/stop [post]
// @Security     BearerAuth
func (h *Handler) stopTimer(c *gin.Context) {
	h.replyOrError(c, "device_stop_timer_failed", h.services.Device.StopTimer)
}

// @Summary      Set LED colour
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      SetLEDRequest  true  "RGB"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/device/led [post]
// @Security     BearerAuth
func (h *Handler) setLED(c *gin.Context) {
	var req SetLEDRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	reply, err := h.services.Device.SetLED(c.Request.Context(), *req.R, *req.G, *req.B)
	if err != nil {
		h.respondError(c, "device_set_led_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": reply})
}

// @Summary      Set link idle timeout
// @Tags         device
// @Accept       json
// @Produce      json
// @Param        body  body      SetIdleTimeoutRequest  true  "Seconds"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/device/timeout [post]
// @Security     BearerAuth
func (h *Handler) setIdleTimeout(c *gin.Context) {
	var req SetIdleTimeoutRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.Device.SetIdleTimeout(c.Request.Context(), req.Seconds); err != nil {
		h.respondError(c, "device_set_idle_timeout_failed", err, "seconds", req.Seconds)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "idle_timeout_seconds": req.Seconds})
}

// @Summary      Link statistics
// @Tags         device
// @Produce      json
// @Success      200  {object}  connection.Stats
// @Router       /api/v1/device/link [get]
// @Security     BearerAuth
func (h *Handler) linkStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Device.LinkStats())
}

func (h *Handler) replyOrError(c *gin.Context, logKey string, fn func(ctx context.Context) (string, error)) {
	reply, err := fn(c.Request.Context())
	if err != nil {
		h.respondError(c, logKey, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": reply})
}
