package projects

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/database/databasetest"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type cleanerFunc func(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error

func (f cleanerFunc) DeleteProjectDependents(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	return f(ctx, tx, projectID)
}

func newUser(t *testing.T, db *gorm.DB, role auth.Role) auth.Caller {
	t.Helper()
	user := &auth.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: role, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return auth.Caller{UserID: user.ID, Role: role}
}

func setup(t *testing.T, cleaners ...DependentCleaner) (Service, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := databasetest.NewDB(t, auth.Migrate, Migrate)
	pub := &recordingPublisher{}
	return NewService(NewRepository(db), pub, zap.NewNop(), cleaners...), db, pub
}

func validSubmit() SubmitRequest {
	tonnage := 100
	return SubmitRequest{
		Name:        "Mangrove Restoration",
		Description: "Coastal mangrove replanting",
		Location:    "Mombasa, Kenya",
		Tonnage:     &tonnage,
	}
}

func TestSubmitCreatesPendingProject(t *testing.T) {
	svc, db, pub := setup(t)
	seller := newUser(t, db, auth.RoleSeller)

	project, err := svc.Submit(context.Background(), seller, validSubmit())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, project.Status)
	assert.Equal(t, seller.UserID, project.OwnerID)
	assert.Equal(t, 100, project.Tonnage)
	assert.Equal(t, DefaultVintage, project.Vintage)
	assert.Nil(t, project.VerifierID)

	var history []ProjectStatusHistory
	require.NoError(t, db.Where("project_id = ?", project.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, StatusPending, history[0].Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, notifications.EventProjectSubmitted, pub.events[0].Type)
}

func TestSubmitDefaultsTonnage(t *testing.T) {
	svc, db, _ := setup(t)
	seller := newUser(t, db, auth.RoleSeller)

	req := validSubmit()
	req.Tonnage = nil
	project, err := svc.Submit(context.Background(), seller, req)
	require.NoError(t, err)
	assert.Equal(t, 0, project.Tonnage)
}

func TestSubmitValidation(t *testing.T) {
	svc, db, _ := setup(t)
	seller := newUser(t, db, auth.RoleSeller)
	negative := -5

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"missing name", func(r *SubmitRequest) { r.Name = "  " }},
		{"missing description", func(r *SubmitRequest) { r.Description = "" }},
		{"missing location", func(r *SubmitRequest) { r.Location = "" }},
		{"negative tonnage", func(r *SubmitRequest) { r.Tonnage = &negative }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmit()
			tt.mutate(&req)
			_, err := svc.Submit(context.Background(), seller, req)
			assert.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestSubmitRequiresSeller(t *testing.T) {
	svc, db, _ := setup(t)

	for _, role := range []auth.Role{auth.RoleBuyer, auth.RoleVerifier, auth.RoleAdmin} {
		caller := newUser(t, db, role)
		_, err := svc.Submit(context.Background(), caller, validSubmit())
		assert.True(t, errors.Is(err, apperrors.ErrAuthorization), "role %s", role)
	}

	_, err := svc.Submit(context.Background(), auth.Caller{}, validSubmit())
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
}

func TestListViews(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	seller := newUser(t, db, auth.RoleSeller)
	other := newUser(t, db, auth.RoleSeller)
	verifier := newUser(t, db, auth.RoleVerifier)
	otherVerifier := newUser(t, db, auth.RoleVerifier)
	buyer := newUser(t, db, auth.RoleBuyer)

	pending, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)
	approved, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)
	rejected, err := svc.Submit(ctx, other, validSubmit())
	require.NoError(t, err)

	repo := NewRepository(db)
	n, err := repo.UpdateReview(ctx, approved.ID, StatusPending, StatusApproved, verifier.UserID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = repo.UpdateReview(ctx, rejected.ID, StatusPending, StatusRejected, otherVerifier.UserID)
	require.NoError(t, err)

	list, err := svc.ListApproved(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID, list[0].ID)

	own, err := svc.ListOwn(ctx, seller)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	queue, err := svc.ListPendingForReview(ctx, verifier)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.ID, queue[0].ID)

	dashboard, err := svc.ListForVerifierDashboard(ctx, verifier)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, p := range dashboard {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pending.ID, approved.ID}, ids)

	_, err = svc.ListPendingForReview(ctx, seller)
	assert.True(t, errors.Is(err, apperrors.ErrAuthorization))
	_, err = svc.ListOwn(ctx, buyer)
	assert.True(t, errors.Is(err, apperrors.ErrAuthorization))
}

func TestGetByIDNotFound(t *testing.T) {
	svc, db, _ := setup(t)
	buyer := newUser(t, db, auth.RoleBuyer)

	_, err := svc.GetByID(context.Background(), buyer, uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateIsOwnershipScoped(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	seller := newUser(t, db, auth.RoleSeller)
	other := newUser(t, db, auth.RoleSeller)

	project, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)

	name := "Renamed"
	_, err = svc.Update(ctx, other, project.ID, UpdateRequest{Name: &name})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	status := "APPROVED"
	_, err = svc.Update(ctx, seller, project.ID, UpdateRequest{Status: &status})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	updated, err := svc.Update(ctx, seller, project.ID, UpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, StatusPending, updated.Status)

	activity, err := svc.ListActivity(ctx, seller, project.ID)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, ActivityUpdated, activity[1].ActivityType)
}

func TestDeleteRunsCleanersInTransaction(t *testing.T) {
	var cleaned []uuid.UUID
	veto := false
	cleaner := cleanerFunc(func(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
		if veto {
			return apperrors.State("project has sold credits")
		}
		cleaned = append(cleaned, projectID)
		return nil
	})
	svc, db, _ := setup(t, cleaner)
	ctx := context.Background()
	seller := newUser(t, db, auth.RoleSeller)
	other := newUser(t, db, auth.RoleSeller)

	first, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)
	second, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)

	err = svc.Delete(ctx, other, first.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, cleaned)

	require.NoError(t, svc.Delete(ctx, seller, first.ID))
	assert.Equal(t, []uuid.UUID{first.ID}, cleaned)
	_, err = svc.GetByID(ctx, seller, first.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	veto = true
	err = svc.Delete(ctx, seller, second.ID)
	assert.True(t, errors.Is(err, apperrors.ErrState))
	_, err = svc.GetByID(ctx, seller, second.ID)
	assert.NoError(t, err)
}

func TestAttachFile(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	seller := newUser(t, db, auth.RoleSeller)

	project, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)

	_, err = svc.AttachFile(ctx, seller, project.ID, FileKind("video"), "cid")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	updated, err := svc.AttachFile(ctx, seller, project.ID, FileImage, "projects/abc/image.png")
	require.NoError(t, err)
	require.NotNil(t, updated.ImageCID)
	assert.Equal(t, "projects/abc/image.png", *updated.ImageCID)

	stored, err := svc.GetByID(ctx, seller, project.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ImageCID)
	assert.Equal(t, "projects/abc/image.png", *stored.ImageCID)
	assert.Nil(t, stored.DocumentCID)

	_, err = svc.AttachFile(ctx, seller, project.ID, FileMetadata, "projects/abc/meta.json")
	require.NoError(t, err)
	var metadataCID string
	require.NoError(t, db.Raw("SELECT metadata_cid FROM projects WHERE id = ?", project.ID).Scan(&metadataCID).Error)
	assert.Equal(t, "projects/abc/meta.json", metadataCID)
}

func TestUpdateLocksQuantitiesAfterReview(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	seller := newUser(t, db, auth.RoleSeller)
	verifier := newUser(t, db, auth.RoleVerifier)

	project, err := svc.Submit(ctx, seller, validSubmit())
	require.NoError(t, err)

	tonnage := 250
	updated, err := svc.Update(ctx, seller, project.ID, UpdateRequest{Tonnage: &tonnage})
	require.NoError(t, err)
	assert.Equal(t, 250, updated.Tonnage)

	n, err := NewRepository(db).UpdateReview(ctx, project.ID, StatusPending, StatusApproved, verifier.UserID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	inflated := 1000000
	_, err = svc.Update(ctx, seller, project.ID, UpdateRequest{Tonnage: &inflated})
	assert.True(t, errors.Is(err, apperrors.ErrState))
	vintage := 2030
	_, err = svc.Update(ctx, seller, project.ID, UpdateRequest{Vintage: &vintage})
	assert.True(t, errors.Is(err, apperrors.ErrState))

	// Descriptive fields stay editable, and resending the same tonnage is fine.
	name := "Mangrove Restoration II"
	updated, err = svc.Update(ctx, seller, project.ID, UpdateRequest{Name: &name, Tonnage: &tonnage})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	stored, err := svc.GetByID(ctx, seller, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 250, stored.Tonnage)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestHandlerSubmitAndList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, db, _ := setup(t)
	seller := newUser(t, db, auth.RoleSeller)
	buyer := newUser(t, db, auth.RoleBuyer)

	router := gin.New()
	current := seller
	router.Use(func(c *gin.Context) {
		auth.SetCaller(c, current)
		c.Next()
	})
	NewHandler(svc, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))

	body := `{"name":"Solar Farm","description":"Grid solar","location":"Rajasthan","tonnage":40}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PENDING"`)

	current = buyer
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/projects/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/not-a-uuid/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
