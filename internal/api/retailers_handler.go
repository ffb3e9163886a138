package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/pricefeed/internal/domain"
)

// getRetailerVisibility reports whether a retailer's prices are publicly
// visible, composed from its eligibility and merchant relationships.
// GET /api/v1/retailers/:id/visibility
func (r *Router) getRetailerVisibility(c *gin.Context) {
	ctx := c.Request.Context()
	retailerID := c.Param("id")

	eligibility, err := r.relationships.GetEligibility(ctx, retailerID)
	if err != nil {
		handleStoreError(c, err, "retailer")
		return
	}

	relationships, err := r.relationships.ListByRetailer(ctx, retailerID)
	if err != nil {
		handleStoreError(c, err, "relationships")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"retailer_id":   retailerID,
		"eligibility":   eligibility,
		"visible":       domain.Visible(eligibility, relationships),
		"relationships": relationships,
	})
}
