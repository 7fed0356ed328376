package service

import (
	"context"
	"strings"

	"keikkaduuni/internal/domain"
)

// UserService provides public profile lookups and the minimal listing
// surface conversations are scoped to.
type UserService struct {
	users    domain.UserRepository
	listings domain.ListingRepository
}

func NewUserService(users domain.UserRepository, listings domain.ListingRepository) *UserService {
	return &UserService{users: users, listings: listings}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) CreateListing(ctx context.Context, ownerID int64, kind domain.ListingKind, title string) (*domain.Listing, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.NewValidationError("title", "is required")
	}
	l := &domain.Listing{Kind: kind, OwnerID: ownerID, Title: title}
	if err := s.listings.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *UserService) GetListing(ctx context.Context, kind domain.ListingKind, id int64) (*domain.Listing, error) {
	return s.listings.GetByID(ctx, kind, id)
}
