package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
)

const minPasswordLength = 8

// Service is the identity collaborator used by the marketplace.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, *TokenPair, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	IssueSessionTokens(ctx context.Context, user *User) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeSession(ctx context.Context, caller Caller, refreshToken string) error
	VerifyAccessToken(ctx context.Context, accessToken string) (Caller, error)

	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateLedgerAccount(ctx context.Context, id uuid.UUID, ledgerAccountID *string) (*User, error)
	PurgeExpiredRevocations(ctx context.Context) (int64, error)
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

type authService struct {
	repo       Repository
	tokens     *TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(repo Repository, tokens *TokenManager, bcryptCost int, logger *zap.Logger) Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &authService{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*User, *TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, apperrors.Validation("enter a valid email address")
	}
	if len(req.Password) < minPasswordLength {
		return nil, nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	role, ok := ParseRole(req.Role)
	if !ok {
		return nil, nil, apperrors.Validation(fmt.Sprintf("%q is not a valid role", req.Role))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, nil, apperrors.Conflict("a user with this email already exists")
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))
	return user, tokens, nil
}

func (s *authService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperrors.Authentication("unable to log in with provided credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.Authentication("unable to log in with provided credentials")
	}
	if !user.IsActive {
		return nil, apperrors.Authentication("user account is disabled")
	}
	return user, nil
}

func (s *authService) IssueSessionTokens(ctx context.Context, user *User) (*TokenPair, error) {
	return s.tokens.Issue(user)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked, so each refresh token works once.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperrors.Authentication("token is invalid or expired")
	}
	revoked, err := s.repo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if revoked {
		return nil, apperrors.Authentication("token is invalid or expired")
	}

	caller, err := claims.Caller()
	if err != nil {
		return nil, apperrors.Authentication("token is invalid or expired")
	}
	user, err := s.repo.GetUserByID(ctx, caller.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperrors.Authentication("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.Authentication("user account is disabled")
	}

	if err := s.revoke(ctx, claims, user.ID); err != nil {
		return nil, err
	}
	return s.tokens.Issue(user)
}

func (s *authService) RevokeSession(ctx context.Context, caller Caller, refreshToken string) error {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return apperrors.Validation("token is invalid or expired")
	}
	if claims.UserID != caller.UserID.String() {
		return apperrors.Validation("token is invalid or expired")
	}
	if err := s.revoke(ctx, claims, caller.UserID); err != nil {
		return err
	}
	s.logger.Info("Session revoked", zap.String("user_id", caller.UserID.String()))
	return nil
}

func (s *authService) revoke(ctx context.Context, claims *Claims, userID uuid.UUID) error {
	expires := s.now()
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	err := s.repo.RevokeToken(ctx, &RevokedToken{
		TokenID:   claims.ID,
		UserID:    userID,
		ExpiresAt: expires,
	})
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *authService) VerifyAccessToken(ctx context.Context, accessToken string) (Caller, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return Caller{}, apperrors.Authentication("given token not valid for any token type")
	}
	caller, err := claims.Caller()
	if err != nil {
		return Caller{}, apperrors.Authentication("given token not valid for any token type")
	}
	return caller, nil
}

func (s *authService) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

func (s *authService) UpdateLedgerAccount(ctx context.Context, id uuid.UUID, ledgerAccountID *string) (*User, error) {
	if ledgerAccountID != nil {
		trimmed := strings.TrimSpace(*ledgerAccountID)
		if len(trimmed) > 255 {
			return nil, apperrors.Validation("ledger account id must be at most 255 characters")
		}
		if trimmed == "" {
			ledgerAccountID = nil
		} else {
			ledgerAccountID = &trimmed
		}
	}
	err := s.repo.UpdateLedgerAccount(ctx, id, ledgerAccountID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *authService) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeRevokedBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	return n, nil
}
