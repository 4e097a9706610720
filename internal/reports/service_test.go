package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/database/databasetest"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, evt notifications.Event) {}

type fixture struct {
	db       *gorm.DB
	engine   marketplace.Engine
	projects projects.Service
	service  Service
	cache    *SummaryCache

	admin, seller, buyer, verifier auth.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := databasetest.NewDB(t, auth.Migrate, projects.Migrate, marketplace.Migrate)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	f := &fixture{db: db, cache: NewSummaryCache(time.Minute)}
	projectRepo := projects.NewRepository(db)
	f.engine = marketplace.NewEngine(marketplace.NewRepository(db), projectRepo, nopPublisher{}, zap.NewNop())
	f.projects = projects.NewService(projectRepo, nopPublisher{}, zap.NewNop(), f.engine)
	f.service = NewService(NewPostgresRepository(sqlx.NewDb(sqlDB, "sqlite3")), f.cache, zap.NewNop())

	f.admin = f.user(t, auth.RoleAdmin)
	f.seller = f.user(t, auth.RoleSeller)
	f.buyer = f.user(t, auth.RoleBuyer)
	f.verifier = f.user(t, auth.RoleVerifier)
	return f
}

func (f *fixture) user(t *testing.T, role auth.Role) auth.Caller {
	t.Helper()
	user := &auth.User{Email: uuid.NewString() + "@example.com", PasswordHash: "x", Role: role, IsActive: true}
	require.NoError(t, f.db.Create(user).Error)
	return auth.Caller{UserID: user.ID, Role: role}
}

// mintAndList approves a fresh project and lists its credit at price.
func (f *fixture) mintAndList(t *testing.T, name string, serial int64, price string) *marketplace.Listing {
	t.Helper()
	ctx := context.Background()
	project, err := f.projects.Submit(ctx, f.seller, projects.SubmitRequest{
		Name: name, Description: "Mangrove restoration", Location: "Sundarbans",
	})
	require.NoError(t, err)

	token := "0.0.777"
	_, err = f.engine.Review(ctx, f.verifier, project.ID, marketplace.ReviewRequest{
		Status: "APPROVED", SerialNumber: &serial, TokenAddress: &token,
	})
	require.NoError(t, err)

	credits, err := f.engine.ListMyCredits(ctx, f.seller)
	require.NoError(t, err)
	var creditID uuid.UUID
	for _, c := range credits {
		if c.ProjectID == project.ID {
			creditID = c.ID
		}
	}
	require.NotEqual(t, uuid.Nil, creditID)

	listing, err := f.engine.CreateListing(ctx, f.seller, marketplace.CreateListingRequest{
		CreditID: creditID, Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return listing
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := f.mintAndList(t, "Mangroves A", 1, "40.00")
	f.mintAndList(t, "Mangroves B", 2, "15.50")
	_, err := f.projects.Submit(ctx, f.seller, projects.SubmitRequest{
		Name: "Pending", Description: "Awaiting review", Location: "Borneo",
	})
	require.NoError(t, err)

	_, err = f.engine.Buy(ctx, f.buyer, sold.ID)
	require.NoError(t, err)
	_, err = f.engine.Claim(ctx, f.seller, sold.ID)
	require.NoError(t, err)

	summary, err := f.service.Summary(ctx, f.admin)
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.ProjectsByStatus["APPROVED"])
	assert.Equal(t, int64(1), summary.ProjectsByStatus["PENDING"])
	assert.Equal(t, int64(1), summary.CreditsByStatus["SOLD"])
	assert.Equal(t, int64(1), summary.CreditsByStatus["LISTED"])
	assert.Equal(t, int64(1), summary.ActiveListings)
	assert.Equal(t, int64(1), summary.SalesCount)
	assert.True(t, decimal.RequireFromString("40").Equal(summary.SalesVolume), summary.SalesVolume.String())
	assert.True(t, decimal.RequireFromString("40").Equal(summary.ClaimedVolume), summary.ClaimedVolume.String())
}

func TestSummaryIsCachedUntilAnEventArrives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Summary(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.ActiveListings)

	f.mintAndList(t, "Mangroves", 9, "10.00")

	cached, err := f.service.Summary(ctx, f.admin)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	require.NoError(t, f.cache.Deliver(ctx, notifications.NewEvent(notifications.EventListingCreated, f.seller.UserID)))

	fresh, err := f.service.Summary(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.ActiveListings)

	hits, misses := f.cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestSummaryRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Summary(context.Background(), f.seller)
	assert.True(t, errors.Is(err, apperrors.ErrAuthorization))

	_, err = f.service.Summary(context.Background(), auth.Caller{})
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
}

func TestExportSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := f.mintAndList(t, "Peatland", 3, "12.25")
	f.mintAndList(t, "Unsold", 4, "99.00")
	_, err := f.engine.Buy(ctx, f.buyer, sold.ID)
	require.NoError(t, err)

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		contentType, err := f.service.ExportSales(ctx, f.seller, "", &buf)
		require.NoError(t, err)
		assert.Contains(t, contentType, "spreadsheetml")

		book, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer book.Close()
		rows, err := book.GetRows("Sales")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, saleColumns, rows[0])
		assert.Equal(t, sold.ID.String(), rows[1][0])
		assert.Equal(t, "Peatland", rows[1][1])
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		contentType, err := f.service.ExportSales(ctx, f.seller, FormatCSV, &buf)
		require.NoError(t, err)
		assert.Equal(t, "text/csv", contentType)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "12.25", records[1][4])
		assert.Equal(t, f.buyer.UserID.String(), records[1][5])
		assert.Equal(t, "false", records[1][7])
	})

	t.Run("rejects other formats and roles", func(t *testing.T) {
		_, err := f.service.ExportSales(ctx, f.seller, "pdf", &bytes.Buffer{})
		assert.True(t, errors.Is(err, apperrors.ErrValidation))

		_, err = f.service.ExportSales(ctx, f.buyer, FormatCSV, &bytes.Buffer{})
		assert.True(t, errors.Is(err, apperrors.ErrAuthorization))
	})
}

func TestWriteCertificate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.mintAndList(t, "Agroforestry", 5, "8.00")
	credit, err := f.engine.Buy(ctx, f.buyer, listing.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.service.WriteCertificate(ctx, f.buyer, credit.ID, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	err = f.service.WriteCertificate(ctx, f.seller, credit.ID, &bytes.Buffer{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "previous owner no longer holds the credit")

	err = f.service.WriteCertificate(ctx, f.buyer, uuid.New(), &bytes.Buffer{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	current := f.seller

	router := gin.New()
	group := router.Group("/api/v1", func(c *gin.Context) {
		auth.SetCaller(c, current)
		c.Next()
	})
	NewHandler(f.service, zap.NewNop()).RegisterRoutes(group)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/my-sales/export/?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=sales.csv", w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nfts/not-a-uuid/certificate/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	current = f.admin
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_listings":0`)
}
