package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sous_vide/internal/service"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// logsQuery is the query string of GET /api/v1/logs.
type logsQuery struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Type  string `form:"type"`
	Limit int    `form:"limit"`
}

// filter turns the raw query into a service filter. The second result is a
// client error message, empty when the times parse.
func (q logsQuery) filter() (service.LogFilter, string) {
	f := service.LogFilter{Type: q.Type, Limit: q.Limit}
	var err error
	if q.From != "" {
		if f.From, err = parseQueryTime(q.From); err != nil {
			return f, errFromInvalid
		}
	}
	if q.To != "" {
		if f.To, err = parseQueryTime(q.To); err != nil {
			return f, errToInvalid
		}
		// date-only means end of that day, inclusive
		if isDateOnly(q.To) {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return f, ""
}

// @Summary      Device history
// @Description  Commands, link open/close and delayed-action outcomes, oldest first. Dates accept RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'; a date-only 'to' covers that whole day.
// @Tags         logs
// @Produce      json
// @Param        from   query   string  false  "Start of range"  example(2024-06-01)
// @Param        to     query   string  false  "End of range, inclusive"  example(2024-06-30)
// @Param        type   query   string  false  "Event type"  Enums(LINK_OPENED,LINK_CLOSED,START,STOP,SET_TEMP,TIMER,LED,IDLE_TIMEOUT,ACTION_SCHEDULED,ACTION_CANCELLED,ACTION_FIRED,ACTION_FAILED)
// @Param        limit  query   int     false  "Keep only the newest N entries (max 1000)"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	var q logsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}
	f, msg := q.filter()
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, "logs_list_failed", err, "from", q.From, "to", q.To, "type", q.Type, "limit", q.Limit)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// parseQueryTime accepts RFC 3339, "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD", all read as UTC.
func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
