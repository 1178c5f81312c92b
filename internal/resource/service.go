package resource

import (
	"context"
	"net/http"
	"strings"

	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
)

var ErrNotOwner = apperror.New(http.StatusForbidden, "only the owner can change this resource")

type CreateRequest struct {
	OwnerID string
	Title   string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context, filter Filter) ([]*Resource, int, error)
	// SetHidden hides or unhides a resource on behalf of its owner.
	SetHidden(ctx context.Context, id, callerID string, hidden bool) (*Resource, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Resource, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if req.OwnerID == "" {
		return nil, ErrInvalidOwner
	}

	res := &Resource{
		OwnerID: req.OwnerID,
		Title:   title,
		Status:  StatusAvailable,
	}
	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Resource, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Resource, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	return s.repo.List(ctx, filter)
}

func (s *service) SetHidden(ctx context.Context, id, callerID string, hidden bool) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.IsOwnedBy(callerID) {
		return nil, ErrNotOwner
	}

	prev := res.Status
	if hidden {
		err = res.Hide()
	} else {
		err = res.Unhide()
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateState(ctx, res, prev); err != nil {
		return nil, err
	}
	return res, nil
}
