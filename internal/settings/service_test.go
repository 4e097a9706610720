package settings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/database/databasetest"
)

// MockUserStore is a mock implementation of the UserStore interface
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUserStore) UpdateLedgerAccount(ctx context.Context, id uuid.UUID, ledgerAccountID *string) (*auth.User, error) {
	args := m.Called(ctx, id, ledgerAccountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func TestUpdateProfileRejectsRoleChange(t *testing.T) {
	users := new(MockUserStore)
	svc := NewService(users, nil)
	caller := auth.Caller{UserID: uuid.New(), Role: auth.RoleBuyer}

	role := "SELLER"
	_, err := svc.UpdateProfile(context.Background(), caller, UpdateProfileRequest{Role: &role})

	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	users.AssertNotCalled(t, "UpdateLedgerAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateProfileSetsLedgerAccount(t *testing.T) {
	users := new(MockUserStore)
	svc := NewService(users, nil)
	caller := auth.Caller{UserID: uuid.New(), Role: auth.RoleSeller}
	account := "0.0.1001"

	users.On("UpdateLedgerAccount", mock.Anything, caller.UserID, &account).
		Return(&auth.User{ID: caller.UserID, Email: "s@example.com", Role: auth.RoleSeller, LedgerAccountID: &account}, nil)

	profile, err := svc.UpdateProfile(context.Background(), caller, UpdateProfileRequest{LedgerAccountID: &account})

	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", *profile.LedgerAccountID)
	users.AssertExpectations(t)
}

func TestNotificationPreferences(t *testing.T) {
	db := databasetest.NewDB(t, Migrate)
	svc := NewService(new(MockUserStore), NewRepository(db))
	caller := auth.Caller{UserID: uuid.New(), Role: auth.RoleSeller}
	ctx := context.Background()

	prefs, err := svc.GetNotifications(ctx, caller.UserID)
	require.NoError(t, err)
	assert.True(t, prefs.EmailOnSale)
	assert.True(t, prefs.EmailOnReview)

	off := false
	_, err = svc.UpdateNotifications(ctx, caller, UpdateNotificationsRequest{EmailOnSale: &off})
	require.NoError(t, err)

	_, err = svc.UpdateNotifications(ctx, caller, UpdateNotificationsRequest{EmailOnReview: &off})
	require.NoError(t, err)

	prefs, err = svc.GetNotifications(ctx, caller.UserID)
	require.NoError(t, err)
	assert.False(t, prefs.EmailOnSale)
	assert.False(t, prefs.EmailOnReview)
}

func TestProfileHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := new(MockUserStore)
	caller := auth.Caller{UserID: uuid.New(), Role: auth.RoleVerifier}
	users.On("GetUser", mock.Anything, caller.UserID).
		Return(&auth.User{ID: caller.UserID, Email: "v@example.com", Role: auth.RoleVerifier}, nil)

	h := NewHandler(NewService(users, nil), zap.NewNop())
	router := gin.New()
	group := router.Group("/api/v1", func(c *gin.Context) { auth.SetCaller(c, caller) })
	h.RegisterRoutes(group)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/users/profile/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"VERIFIER"`)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPatch, "/api/v1/users/profile/", strings.NewReader(`{"role":"ADMIN"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"role cannot be changed"}`, w.Body.String())
}
