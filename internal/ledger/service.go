package ledger

import "context"

type Service interface {
	List(ctx context.Context, filter Filter) ([]*Entry, int, error)
	CurrentOccupant(ctx context.Context, resourceID string) (*Entry, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) CurrentOccupant(ctx context.Context, resourceID string) (*Entry, error) {
	return s.repo.FindCurrentOccupant(ctx, resourceID)
}
