package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers loan lifecycle routes under /resources/:id.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/resources/:id")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.POST("/loans/:action", h.Act)       // Perform a loan action
		group.GET("/loans", h.ListEntries)        // Loan history
		group.GET("/occupant", h.Occupant)        // Current borrower's loan
		group.GET("/requests", h.PendingRequests) // Live loan requests (owner only)
	}
}
