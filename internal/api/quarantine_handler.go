package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/pricefeed/internal/database"
	"github.com/jonesrussell/pricefeed/internal/domain"
)

// quarantineFilterFromQuery builds the shared filter for list and bulk
// endpoints from feed_id and code query parameters.
func quarantineFilterFromQuery(c *gin.Context) database.QuarantineFilter {
	return database.QuarantineFilter{
		FeedID: c.Query("feed_id"),
		Code:   domain.ErrorCode(c.Query("code")),
		Limit:  parseLimit(c),
	}
}

// listQuarantined returns quarantined records, oldest first
// GET /api/v1/quarantine?feed_id=...&code=...
func (r *Router) listQuarantined(c *gin.Context) {
	records, err := r.qstore.List(c.Request.Context(), quarantineFilterFromQuery(c))
	if err != nil {
		handleStoreError(c, err, "quarantined records")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// getQuarantined retrieves one quarantined record with its corrections
// GET /api/v1/quarantine/:id
func (r *Router) getQuarantined(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	record, err := r.qstore.GetByID(ctx, id)
	if err != nil {
		handleStoreError(c, err, "quarantined record")
		return
	}

	corrections, err := r.qstore.ListCorrections(ctx, id)
	if err != nil {
		handleStoreError(c, err, "corrections")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":      record,
		"corrections": corrections,
		"effective":   record.EffectiveFields(corrections),
	})
}

// applyCorrection appends a field-level fix to a quarantined record
// POST /api/v1/quarantine/:id/corrections
func (r *Router) applyCorrection(c *gin.Context) {
	var req struct {
		Field    string `json:"field"`
		NewValue string `json:"new_value"`
		Author   string `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if req.Field == "" || req.Author == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field and author are required"})
		return
	}

	correction, err := r.qmanager.ApplyCorrection(
		c.Request.Context(), c.Param("id"), req.Field, req.NewValue, req.Author)
	if err != nil {
		handleStoreError(c, err, "quarantined record")
		return
	}
	c.JSON(http.StatusCreated, correction)
}

// reprocessOne re-validates a corrected record and promotes it on success
// POST /api/v1/quarantine/:id/reprocess
func (r *Router) reprocessOne(c *gin.Context) {
	blocking, err := r.qmanager.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleStoreError(c, err, "quarantined record")
		return
	}

	if len(blocking) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"resolved": false,
			"errors":   blocking,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// bulkReprocess reprocesses all matching records up to the pass limit
// POST /api/v1/quarantine/reprocess?feed_id=...&code=...
func (r *Router) bulkReprocess(c *gin.Context) {
	result, err := r.qmanager.ReprocessAll(c.Request.Context(), quarantineFilterFromQuery(c))
	if err != nil {
		handleStoreError(c, err, "quarantined records")
		return
	}
	c.JSON(http.StatusOK, result)
}

// bulkDismiss dismisses all matching records with a mandatory note
// POST /api/v1/quarantine/dismiss?feed_id=...&code=...
func (r *Router) bulkDismiss(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	result, err := r.qmanager.DismissAll(c.Request.Context(), quarantineFilterFromQuery(c), req.Note)
	if err != nil {
		if errors.Is(err, domain.ErrDismissNoteTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "dismiss note must be at least 10 characters",
			})
			return
		}
		handleStoreError(c, err, "quarantined records")
		return
	}
	c.JSON(http.StatusOK, result)
}
