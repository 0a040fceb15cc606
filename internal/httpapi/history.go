package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nodewatch/telemetryd/internal/query"
)

// handleHistory implements GET /api/history?from=&to=&resolution=.
func (s *Server) handleHistory(c *gin.Context) {
	now := time.Now().UnixMilli()

	to := now
	if v := c.Query("to"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			to = n
		}
	}
	from := now - 3_600_000
	if v := c.Query("from"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			from = n
		}
	}
	resolution := parseResolution(c.Query("resolution"))

	rows, err := query.History(s.store, from, to, resolution, s.cfg.Database.RawRetentionHours)
	if err == query.ErrInvalidRange {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be less than to"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// parseResolution accepts "1s"|"30s"|"1m"|"5m" or any integer second count
// in [1, 3600]; anything else defaults to 60.
func parseResolution(raw string) int {
	switch raw {
	case "1s":
		return 1
	case "30s":
		return 30
	case "1m":
		return 60
	case "5m":
		return 300
	case "":
		return 60
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 3600 {
		return 60
	}
	return n
}
