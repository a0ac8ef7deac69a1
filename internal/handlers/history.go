package handlers

import (
	"net/http"
	"time"

	"fenix_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Request DTO for importing room energy history.
type importRequest struct {
	InstallationID string `json:"installation_id" binding:"required"`
	RoomID         string `json:"room_id" binding:"required"`
	From           string `json:"from" binding:"required"` // RFC3339 or YYYY-MM-DD
	To             string `json:"to" binding:"required"`   // RFC3339 or YYYY-MM-DD
}

// ImportRequest is an exported model for Swagger docs of the import payload.
type ImportRequest struct {
	InstallationID string `json:"installation_id" example:"8a1f..."`
	RoomID         string `json:"room_id" example:"4c20..."`
	// Start of the import range (RFC3339 or YYYY-MM-DD)
	From string `json:"from" example:"2026-01-01"`
	// End of the import range (RFC3339 or YYYY-MM-DD)
	To string `json:"to" example:"2026-08-01"`
}

// @Summary      Import room energy history
// @Description  Fetches consumption from the vendor cloud and appends it to the local statistic, continuing the cumulative sum.
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        body  body   ImportRequest  true  "Import payload"
// @Success      200   {object}  map[string]interface{}  "status, statistic_id, imported"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/history/import [post]
// @Security     BearerAuth
func (h *Handler) importEnergy(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	from, err := parseQueryTime(req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from': " + err.Error()})
		return
	}
	to, err := parseQueryTime(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to': " + err.Error()})
		return
	}
	if isDateOnly(req.To) {
		to = to.Add(24*time.Hour - time.Nanosecond).UTC()
	}

	ctx := c.Request.Context()
	n, err := h.services.History.ImportRoomEnergy(ctx, req.InstallationID, req.RoomID, from, to)
	if err != nil {
		h.writeCommandError(c, "history_import_failed", err, "installation_id", req.InstallationID, "room_id", req.RoomID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "imported",
		"statistic_id": service.StatisticID(req.InstallationID, req.RoomID),
		"imported":     n,
	})
}

// @Summary      List imported energy statistics
// @Tags         history
// @Produce      json
// @Param        installation_id  query   string  true   "Installation ID"
// @Param        room_id          query   string  true   "Room ID"
// @Param        from             query   string  false  "Start of range (RFC3339 or YYYY-MM-DD)"
// @Param        to               query   string  false  "End of range (RFC3339 or YYYY-MM-DD)"
// @Success      200  {object}  map[string]interface{}  "count, statistics"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/history/energy [get]
// @Security     BearerAuth
func (h *Handler) getEnergyStatistics(c *gin.Context) {
	installationID := c.Query("installation_id")
	roomID := c.Query("room_id")
	if installationID == "" || roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "installation_id and room_id are required"})
		return
	}

	var from, to time.Time
	var err error
	if qs := c.Query("from"); qs != "" {
		if from, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		if to, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}

	ctx := c.Request.Context()
	statID := service.StatisticID(installationID, roomID)
	rows, err := h.services.History.Statistics(ctx, statID, from, to)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load statistics", "history_list_failed", err, "statistic_id", statID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      len(rows),
		"statistics": rows,
	})
}
