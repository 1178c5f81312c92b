package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/bookshare-backend/internal/auth"
	"github.com/nekogravitycat/bookshare-backend/internal/clock"
	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	"github.com/nekogravitycat/bookshare-backend/internal/loan"
	"github.com/nekogravitycat/bookshare-backend/internal/pkg/request"
	"github.com/nekogravitycat/bookshare-backend/internal/pkg/response"
	"github.com/nekogravitycat/bookshare-backend/internal/reservation"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
)

// Coordinator is the part of loan.Coordinator the handlers use.
type Coordinator interface {
	ProcessAction(ctx context.Context, cmd loan.Command) (*loan.Result, error)
	PendingRequests(ctx context.Context, resourceID, callerID string) ([]reservation.Reservation, error)
}

type Handler struct {
	coordinator Coordinator
	resources   resource.Service
	ledger      ledger.Service
	clock       clock.Clock
}

func NewHandler(coordinator Coordinator, resources resource.Service, entries ledger.Service, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Handler{
		coordinator: coordinator,
		resources:   resources,
		ledger:      entries,
		clock:       clk,
	}
}

// Act performs one loan action on a resource. The caller is the owner for
// owner actions and the requester otherwise.
func (h *Handler) Act(c *gin.Context) {
	var uri ActionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	action, err := loan.ParseAction(uri.Action)
	if err != nil {
		response.Error(c, err)
		return
	}

	var body ActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}

	callerID := auth.GetUserID(c)
	cmd := loan.Command{
		ResourceID: uri.ID,
		Action:     action,
		LoanDays:   body.LoanDays,
		Comment:    body.Comment,
	}
	if action.OwnerInitiated() {
		cmd.OwnerID = callerID
		cmd.RequesterID = body.RequesterID
	} else {
		cmd.RequesterID = callerID
	}

	result, err := h.coordinator.ProcessAction(c.Request.Context(), cmd)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewActionResponse(action, result, h.clock.Now()))
}

// ListEntries returns the loan history of a resource. Owners see every entry,
// anyone else only their own.
func (h *Handler) ListEntries(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var req ListEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	res, err := h.resources.GetByID(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := ledger.Filter{
		ResourceID: res.ID,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if callerID := auth.GetUserID(c); !res.IsOwnedBy(callerID) {
		filter.RequesterID = callerID
	}

	entries, total, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := h.clock.Now()
	items := make([]EntryResponse, len(entries))
	for i, e := range entries {
		items[i] = NewEntryResponse(e, now)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, req.Page, req.PageSize, total))
}

// Occupant returns the LOANED entry of a resource.
func (h *Handler) Occupant(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	entry, err := h.ledger.CurrentOccupant(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEntryResponse(entry, h.clock.Now()))
}

// PendingRequests lists the live loan requests of a resource. Owner only.
func (h *Handler) PendingRequests(c *gin.Context) {
	var uri request.ByIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	pending, err := h.coordinator.PendingRequests(c.Request.Context(), uri.ID, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]RequestResponse, len(pending))
	for i, r := range pending {
		items[i] = NewRequestResponse(r)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
