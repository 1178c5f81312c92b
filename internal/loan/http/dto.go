package http

import (
	"time"

	"github.com/nekogravitycat/bookshare-backend/internal/ledger"
	"github.com/nekogravitycat/bookshare-backend/internal/loan"
	"github.com/nekogravitycat/bookshare-backend/internal/pkg/request"
	"github.com/nekogravitycat/bookshare-backend/internal/reservation"
	resourceHttp "github.com/nekogravitycat/bookshare-backend/internal/resource/http"
)

type ActionURI struct {
	ID     string `uri:"id" binding:"required,uuid"`
	Action string `uri:"action" binding:"required"`
}

// ActionRequest is the optional body of a loan action. RequesterID is only
// read for owner actions; requester actions always act for the caller.
type ActionRequest struct {
	RequesterID string `json:"requester_id" binding:"omitempty,uuid"`
	LoanDays    int    `json:"loan_days" binding:"omitempty,min=1,max=365"`
	Comment     string `json:"comment" binding:"max=500"`
}

type EntryResponse struct {
	ID            string     `json:"id"`
	ResourceID    string     `json:"resource_id"`
	RequesterID   string     `json:"requester_id"`
	LoanDays      int        `json:"loan_days"`
	Outcome       *string    `json:"outcome"`
	LoanStartedAt *time.Time `json:"loan_started_at"`
	ReturnedAt    *time.Time `json:"returned_at"`
	DueAt         *time.Time `json:"due_at"`
	Overdue       bool       `json:"overdue"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewEntryResponse(e *ledger.Entry, now time.Time) EntryResponse {
	resp := EntryResponse{
		ID:            e.ID,
		ResourceID:    e.ResourceID,
		RequesterID:   e.RequesterID,
		LoanDays:      e.LoanDays,
		LoanStartedAt: e.LoanStartedAt,
		ReturnedAt:    e.ReturnedAt,
		Overdue:       e.IsOverdue(now),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.Outcome != nil {
		o := string(*e.Outcome)
		resp.Outcome = &o
	}
	if due := e.DueAt(); !due.IsZero() {
		resp.DueAt = &due
	}
	return resp
}

type ActionResponse struct {
	Action   string                        `json:"action"`
	Resource resourceHttp.ResourceResponse `json:"resource"`
	Entry    *EntryResponse                `json:"entry,omitempty"`
}

func NewActionResponse(a loan.Action, r *loan.Result, now time.Time) ActionResponse {
	resp := ActionResponse{
		Action:   a.String(),
		Resource: resourceHttp.NewResponse(r.Resource),
	}
	if r.Entry != nil {
		e := NewEntryResponse(r.Entry, now)
		resp.Entry = &e
	}
	return resp
}

type RequestResponse struct {
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	LoanDays      int       `json:"loan_days"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func NewRequestResponse(r reservation.Reservation) RequestResponse {
	return RequestResponse{
		RequesterID:   r.RequesterID,
		RequesterName: r.RequesterName,
		LoanDays:      r.LoanDays,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}

type ListEntriesRequest struct {
	request.ListParams
}
