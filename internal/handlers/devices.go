package handlers

import (
	"errors"
	"net/http"

	"fenix_bridge/internal/fenix"
	"fenix_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK     = "ok"
	statusSet    = "set"
	statusQueued = "queued"

	errListDevices = "failed to list devices"
	errVendorAuth  = "cloud authentication failed"
	errVendorCloud = "cloud request failed"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// writeCommandError maps the client error classes onto HTTP statuses:
// rejected input is the caller's fault, vendor failures are upstream.
func (h *Handler) writeCommandError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	var verr *fenix.ValidationError
	var aerr *fenix.AuthError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &aerr):
		h.logAndJSONError(c, http.StatusBadGateway, errVendorAuth, logKey, err, kv...)
	case fenix.IsRetryable(err):
		h.logAndJSONError(c, http.StatusBadGateway, errVendorCloud, logKey, err, kv...)
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errVendorCloud, logKey, err, kv...)
	}
}

// Request DTO for preset mode changes.
type presetRequest struct {
	Mode string `json:"mode" binding:"required"` // off | manual | program | defrost | boost
}

// Request DTO for target temperature changes.
type temperatureRequest struct {
	TargetTemp float64 `json:"target_temp" binding:"required"`
}

// SetPresetRequest is an exported model for Swagger docs of the preset payload.
type SetPresetRequest struct {
	// Mode to set. Allowed: off, manual, program, defrost, boost
	Mode string `json:"mode" example:"boost"`
}

// SetTemperatureRequest is an exported model for Swagger docs of the temperature payload.
type SetTemperatureRequest struct {
	// Target temperature in Celsius (5..35)
	TargetTemp float64 `json:"target_temp" example:"21.5"`
}

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

// @Summary      List thermostats
// @Description  Returns the latest polled snapshot of all thermostats.
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	ctx := c.Request.Context()
	devices, err := h.services.Monitoring.Devices(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(devices),
		"devices": devices,
	})
}

// @Summary      Get one thermostat
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "Device ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	ctx := c.Request.Context()
	device, err := h.services.Monitoring.Device(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "device_get_failed", err, "device_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, device)
}

// @Summary      Set preset mode
// @Description  Writes the mode to the vendor cloud and patches the local snapshot optimistically.
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string            true  "Device ID"
// @Param        body  body   SetPresetRequest  true  "Preset payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/preset [put]
// @Security     BearerAuth
func (h *Handler) setPresetMode(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	deviceID := c.Param("id")
	if err := h.services.Climate.SetPresetMode(ctx, deviceID, req.Mode); err != nil {
		h.writeCommandError(c, "device_set_preset_failed", err, "device_id", deviceID, "mode", req.Mode)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSet, "mode": req.Mode})
}

// @Summary      Set target temperature
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        id    path   string                 true  "Device ID"
// @Param        body  body   SetTemperatureRequest  true  "Temperature payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{id}/temperature [put]
// @Security     BearerAuth
func (h *Handler) setTemperature(c *gin.Context) {
	var req temperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	deviceID := c.Param("id")
	if err := h.services.Climate.SetTemperature(ctx, deviceID, req.TargetTemp); err != nil {
		h.writeCommandError(c, "device_set_temperature_failed", err, "device_id", deviceID, "target_temp", req.TargetTemp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSet, "target_temp": req.TargetTemp})
}
