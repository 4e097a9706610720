package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/database/databasetest"
)

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	db := databasetest.NewDB(t, Migrate)
	repo := NewRepository(db)
	tokens := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)
	return NewService(repo, tokens, bcrypt.MinCost, zap.NewNop()), repo
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, RegisterRequest{Email: "Seller@Example.com", Password: "password123", Role: "seller"})
	require.NoError(t, err)
	assert.Equal(t, "seller@example.com", user.Email)
	assert.Equal(t, RoleSeller, user.Role)
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)

	got, err := svc.Authenticate(ctx, "seller@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "seller@example.com", "wrong-password")
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))

	_, err = svc.Authenticate(ctx, "nobody@example.com", "password123")
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", Password: "password123", Role: "BUYER"}},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "short", Role: "BUYER"}},
		{"unknown role", RegisterRequest{Email: "a@example.com", Password: "password123", Role: "OWNER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tt.req)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterRequest{Email: "dup@example.com", Password: "password123", Role: "BUYER"})
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, RegisterRequest{Email: "dup@example.com", Password: "password123", Role: "SELLER"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, tokens, err := svc.Register(ctx, RegisterRequest{Email: "buyer@example.com", Password: "password123", Role: "BUYER"})
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, tokens.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.Refresh, next.Refresh)

	_, err = svc.Refresh(ctx, tokens.Refresh)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))

	_, err = svc.Refresh(ctx, next.Access)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication), "access token must not refresh")
}

func TestRevokeSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, RegisterRequest{Email: "v@example.com", Password: "password123", Role: "VERIFIER"})
	require.NoError(t, err)
	caller := Caller{UserID: user.ID, Role: user.Role}

	err = svc.RevokeSession(ctx, Caller{UserID: uuid.New(), Role: RoleBuyer}, tokens.Refresh)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	require.NoError(t, svc.RevokeSession(ctx, caller, tokens.Refresh))

	_, err = svc.Refresh(ctx, tokens.Refresh)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))

	err = svc.RevokeSession(ctx, caller, "garbage")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestVerifyAccessToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, RegisterRequest{Email: "admin@example.com", Password: "password123", Role: "ADMIN"})
	require.NoError(t, err)

	caller, err := svc.VerifyAccessToken(ctx, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: user.ID, Role: RoleAdmin}, caller)

	_, err = svc.VerifyAccessToken(ctx, tokens.Refresh)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
}

func TestUpdateLedgerAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, RegisterRequest{Email: "s@example.com", Password: "password123", Role: "SELLER"})
	require.NoError(t, err)

	account := " 0.0.4242 "
	updated, err := svc.UpdateLedgerAccount(ctx, user.ID, &account)
	require.NoError(t, err)
	require.NotNil(t, updated.LedgerAccountID)
	assert.Equal(t, "0.0.4242", *updated.LedgerAccountID)
	assert.Equal(t, RoleSeller, updated.Role)

	_, err = svc.UpdateLedgerAccount(ctx, uuid.New(), &account)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPurgeExpiredRevocations(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	require.NoError(t, repo.RevokeToken(ctx, &RevokedToken{TokenID: "old", UserID: uuid.New(), ExpiresAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, repo.RevokeToken(ctx, &RevokedToken{TokenID: "live", UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}))

	n, err := svc.PurgeExpiredRevocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	revoked, err := repo.IsTokenRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRequireRole(t *testing.T) {
	seller := Caller{UserID: uuid.New(), Role: RoleSeller}

	assert.NoError(t, RequireRole(seller, RoleSeller))
	assert.NoError(t, RequireRole(seller, RoleVerifier, RoleSeller))
	assert.True(t, errors.Is(RequireRole(seller, RoleBuyer), apperrors.ErrAuthorization))
	assert.True(t, errors.Is(RequireRole(Caller{}, RoleBuyer), apperrors.ErrAuthentication))
}
