package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Request DTO for scheduling a holiday job.
type holidayRequest struct {
	Mode  string `json:"mode" binding:"required"`  // off | reduce | defrost | sunday
	Start string `json:"start" binding:"required"` // RFC3339 or YYYY-MM-DD
	End   string `json:"end" binding:"required"`   // RFC3339 or YYYY-MM-DD
}

// HolidayRequest is an exported model for Swagger docs of the holiday payload.
type HolidayRequest struct {
	// Holiday mode. Allowed: off, reduce, defrost, sunday
	Mode string `json:"mode" example:"reduce"`
	// Start of the holiday range (RFC3339 or YYYY-MM-DD)
	Start string `json:"start" example:"2026-09-01"`
	// End of the holiday range (RFC3339 or YYYY-MM-DD)
	End string `json:"end" example:"2026-09-14"`
}

// @Summary      Schedule a holiday
// @Description  Creates an installation-wide holiday control job.
// @Tags         holiday
// @Accept       json
// @Produce      json
// @Param        id    path   string          true  "Installation ID"
// @Param        body  body   HolidayRequest  true  "Holiday payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/installations/{id}/holiday [post]
// @Security     BearerAuth
func (h *Handler) scheduleHoliday(c *gin.Context) {
	var req holidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	start, err := parseQueryTime(req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'start': " + err.Error()})
		return
	}
	end, err := parseQueryTime(req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'end': " + err.Error()})
		return
	}
	// date-only end means the whole final day is included
	if isDateOnly(req.End) {
		end = end.Add(24*time.Hour - time.Nanosecond).UTC()
	}

	ctx := c.Request.Context()
	installationID := c.Param("id")
	if err := h.services.Holiday.Schedule(ctx, installationID, start, end, req.Mode); err != nil {
		h.writeCommandError(c, "holiday_schedule_failed", err, "installation_id", installationID, "mode", req.Mode)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusSet,
		"mode":   req.Mode,
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})
}

// @Summary      Cancel the holiday
// @Tags         holiday
// @Produce      json
// @Param        id   path      string  true  "Installation ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/installations/{id}/holiday [delete]
// @Security     BearerAuth
func (h *Handler) cancelHoliday(c *gin.Context) {
	ctx := c.Request.Context()
	installationID := c.Param("id")
	if err := h.services.Holiday.Cancel(ctx, installationID); err != nil {
		h.writeCommandError(c, "holiday_cancel_failed", err, "installation_id", installationID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
