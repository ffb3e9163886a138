package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
)

// maxUploadBytes caps a staged push upload.
const maxUploadBytes = 256 << 20

// FeedCreateRequest is the payload for POST /api/v1/feeds.
type FeedCreateRequest struct {
	RetailerID     string                 `json:"retailer_id"`
	MerchantID     *string                `json:"merchant_id,omitempty"`
	Name           string                 `json:"name"`
	Transport      domain.TransportConfig `json:"transport"`
	Format         domain.FeedFormat      `json:"format,omitempty"`
	FrequencyHours int                    `json:"frequency_hours"`
}

// createFeed registers a new feed
// POST /api/v1/feeds
func (r *Router) createFeed(c *gin.Context) {
	ctx := c.Request.Context()

	var req FeedCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	feed, err := domain.NewFeed(req.RetailerID, req.Name, req.Transport,
		time.Duration(req.FrequencyHours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feed.ID = uuid.New().String()
	feed.MerchantID = req.MerchantID
	if req.Format != "" {
		feed.Format = req.Format
	}

	if err := r.feeds.Create(ctx, feed); err != nil {
		r.log.Error("create feed failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create feed"})
		return
	}

	c.JSON(http.StatusCreated, feed)
}

// getFeed retrieves a feed by ID
// GET /api/v1/feeds/:id
func (r *Router) getFeed(c *gin.Context) {
	feed, err := r.feeds.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleStoreError(c, err, "feed")
		return
	}
	c.JSON(http.StatusOK, feed)
}

// updateFeedStatus toggles a feed's lifecycle status
// PUT /api/v1/feeds/:id/status
func (r *Router) updateFeedStatus(c *gin.Context) {
	var req struct {
		Status domain.FeedStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	switch req.Status {
	case domain.FeedStatusEnabled, domain.FeedStatusPaused, domain.FeedStatusDisabled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "status must be enabled, paused or disabled",
		})
		return
	}

	if err := r.feeds.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		handleStoreError(c, err, "feed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

// triggerRun flags a feed for a manual run; the scheduler drains the flag
// onto the high-priority queue.
// POST /api/v1/feeds/:id/trigger
func (r *Router) triggerRun(c *gin.Context) {
	if err := r.feeds.SetManualPending(c.Request.Context(), c.Param("id"), true); err != nil {
		handleStoreError(c, err, "feed")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":        c.Param("id"),
		"triggered": true,
	})
}

// uploadPayload stages a push-uploaded feed payload
// POST /api/v1/feeds/:id/upload
func (r *Router) uploadPayload(c *gin.Context) {
	ctx := c.Request.Context()
	feedID := c.Param("id")

	if _, err := r.feeds.GetByID(ctx, feedID); err != nil {
		handleStoreError(c, err, "feed")
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty payload"})
		return
	}

	if err := r.uploads.Put(ctx, feedID, data); err != nil {
		r.log.Error("stage upload failed",
			logger.String("feed_id", feedID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stage upload"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"feed_id": feedID,
		"bytes":   len(data),
	})
}

// testFetch runs an interactive fetch against the feed's transport and
// reports the outcome without ingesting anything.
// POST /api/v1/feeds/:id/test-fetch
func (r *Router) testFetch(c *gin.Context) {
	ctx := c.Request.Context()
	feedID := c.Param("id")

	feed, err := r.feeds.GetByID(ctx, feedID)
	if err != nil {
		handleStoreError(c, err, "feed")
		return
	}

	result, fetchErr := r.tester.Fetch(ctx, feedID, feed.Transport)
	if fetchErr != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":    false,
			"error": fetchErr.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"bytes":        len(result.Data),
		"content_type": result.ContentType,
		"format":       result.Format,
	})
}

// listRuns returns recent runs for a feed
// GET /api/v1/feeds/:id/runs
func (r *Router) listRuns(c *gin.Context) {
	runs, err := r.runs.ListByFeed(c.Request.Context(), c.Param("id"), parseLimit(c))
	if err != nil {
		handleStoreError(c, err, "runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// getRun retrieves a run by ID
// GET /api/v1/runs/:id
func (r *Router) getRun(c *gin.Context) {
	run, err := r.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}
	c.JSON(http.StatusOK, run)
}
