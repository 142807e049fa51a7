package itinerary

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wayfarer/internal/logger"
	"wayfarer/internal/middleware"
)

// Handler serves POST /api/itineraries. It expects RequireAuth in front.
func Handler(d *Drafter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		draft, err := d.Draft(c.Request.Context(), req)
		if err != nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}

		fields := map[string]any{
			"destination": req.Destination,
			"days":        req.Days,
			"source":      string(draft.Source),
		}
		if identity, ok := middleware.IdentityFromContext(c.Request.Context()); ok {
			fields["user_id"] = identity.ID
		}
		logger.Info("itinerary drafted", fields)

		c.JSON(http.StatusOK, draft)
	}
}
