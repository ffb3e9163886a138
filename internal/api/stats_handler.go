package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/pricefeed/internal/logger"
)

// getStatsOverview aggregates quarantine counts and queue depths
// GET /api/v1/stats/overview
func (r *Router) getStatsOverview(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := r.qstore.CountByStatus(ctx)
	if err != nil {
		r.log.Error("quarantine counts failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	manual, scheduled, dead, err := r.queueStats.Depths(ctx)
	if err != nil {
		r.log.Error("queue depths failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quarantine": counts,
		"queue": gin.H{
			"manual":    manual,
			"scheduled": scheduled,
			"dead":      dead,
		},
	})
}

// getRecentRuns returns the dashboard's recent run activity
// GET /api/v1/stats/runs/recent
func (r *Router) getRecentRuns(c *gin.Context) {
	runs, err := r.tracker.GetRecentRuns(c.Request.Context(), parseLimit(c))
	if err != nil {
		r.log.Error("recent runs failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recent runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}
