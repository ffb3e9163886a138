package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// handleStoreError maps storage errors onto HTTP statuses.
func handleStoreError(c *gin.Context, err error, entityType string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": entityType + " not found",
		})
	case errors.Is(err, domain.ErrQuarantineTerminal):
		c.JSON(http.StatusConflict, gin.H{
			"error": entityType + " is already resolved or dismissed",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to access " + entityType,
		})
	}
}

// parseLimit reads the limit query parameter with bounds.
func parseLimit(c *gin.Context) int {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
