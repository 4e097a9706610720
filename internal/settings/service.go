package settings

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

// UserStore is the part of the identity service the profile endpoints need.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
	UpdateLedgerAccount(ctx context.Context, id uuid.UUID, ledgerAccountID *string) (*auth.User, error)
}

type Service struct {
	users UserStore
	repo  Repository
}

func NewService(users UserStore, repo Repository) *Service {
	return &Service{users: users, repo: repo}
}

func (s *Service) GetProfile(ctx context.Context, caller auth.Caller) (*UserProfile, error) {
	user, err := s.users.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return profileFromUser(user), nil
}

// UpdateProfile changes the ledger account id. The role is fixed at registration.
func (s *Service) UpdateProfile(ctx context.Context, caller auth.Caller, req UpdateProfileRequest) (*UserProfile, error) {
	if req.Role != nil && auth.Role(*req.Role) != caller.Role {
		return nil, apperrors.Validation("role cannot be changed")
	}
	if req.LedgerAccountID == nil {
		return s.GetProfile(ctx, caller)
	}
	user, err := s.users.UpdateLedgerAccount(ctx, caller.UserID, req.LedgerAccountID)
	if err != nil {
		return nil, err
	}
	return profileFromUser(user), nil
}

func (s *Service) GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	prefs, err := s.repo.GetNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification preferences: %w", err)
	}
	return prefs, nil
}

func (s *Service) UpdateNotifications(ctx context.Context, caller auth.Caller, req UpdateNotificationsRequest) (*NotificationPreferences, error) {
	prefs, err := s.GetNotifications(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if req.EmailOnSale != nil {
		prefs.EmailOnSale = *req.EmailOnSale
	}
	if req.EmailOnReview != nil {
		prefs.EmailOnReview = *req.EmailOnReview
	}
	if err := s.repo.SaveNotifications(ctx, prefs); err != nil {
		return nil, fmt.Errorf("failed to save notification preferences: %w", err)
	}
	return prefs, nil
}
