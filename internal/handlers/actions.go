package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ScheduleActionRequest plans a start and an optional temperature change.
type ScheduleActionRequest struct {
	// ISO-8601 instant with offset.
	StartTime string `json:"start_time" binding:"required" example:"2024-06-01T12:00:00.000Z"`
	// Optional set point applied one second after the start.
	Temperature string `json:"temperature,omitempty" example:"135.5"`
}

// @Summary      Schedule a delayed start
// @Description  Starts the device at start_time; with temperature, sets it one second later.
// @Tags         actions
// @Accept       json
// @Produce      json
// @Param        body  body      ScheduleActionRequest  true  "Action"
// @Success      201   {object}  map[string]int
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/actions [post]
// @Security     BearerAuth
func (h *Handler) scheduleAction(c *gin.Context) {
	var req ScheduleActionRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	id, err := h.services.Planner.ScheduleAction(c.Request.Context(), req.StartTime, req.Temperature)
	if err != nil {
		h.respondError(c, "action_schedule_failed", err, "start_time", req.StartTime)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// @Summary      List scheduled actions
// @Tags         actions
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, actions"
// @Router       /api/v1/actions [get]
// @Security     BearerAuth
func (h *Handler) listActions(c *gin.Context) {
	actions := h.services.Planner.ListActions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"count":   len(actions),
		"actions": actions,
	})
}

// @Summary      Cancel a scheduled action
// @Tags         actions
// @Produce      json
// @Param        id   path      int  true  "Action id"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/actions/{id} [delete]
// @Security     BearerAuth
func (h *Handler) cancelAction(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}
	if err := h.services.Planner.CancelAction(c.Request.Context(), id); err != nil {
		h.respondError(c, "action_cancel_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "id": id})
}
