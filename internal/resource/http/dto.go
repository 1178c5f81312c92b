package http

import (
	"time"

	"github.com/nekogravitycat/bookshare-backend/internal/pkg/request"
	"github.com/nekogravitycat/bookshare-backend/internal/resource"
)

// ResourceTag is the compact form embedded in other responses.
type ResourceTag struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ResourceResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	HolderID  *string   `json:"holder_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewResponse(r *resource.Resource) ResourceResponse {
	return ResourceResponse{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Status:    string(r.Status),
		HolderID:  r.HolderID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type ListResourcesRequest struct {
	request.ListParams
	OwnerID string `form:"owner_id" binding:"omitempty,uuid"`
	Status  string `form:"status" binding:"omitempty"`
}

// Validate performs custom validation for ListResourcesRequest.
func (r *ListResourcesRequest) Validate() error {
	if r.Status != "" && !resource.Status(r.Status).Valid() {
		return resource.ErrInvalidStatus
	}
	return nil
}

type CreateRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

type VisibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}
