package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports/export"
)

// Service defines the interface for report business logic
type Service interface {
	// Summary is the admin market overview.
	Summary(ctx context.Context, caller auth.Caller) (*MarketSummary, error)
	// Snapshot computes the overview without authorization, for workers.
	Snapshot(ctx context.Context) (*MarketSummary, error)
	// ExportSales writes the caller's completed sales to w and returns the
	// content type of what was written.
	ExportSales(ctx context.Context, caller auth.Caller, format string, w io.Writer) (string, error)
	// WriteCertificate renders an ownership certificate for a credit the caller owns.
	WriteCertificate(ctx context.Context, caller auth.Caller, creditID uuid.UUID, w io.Writer) error
}

type reportService struct {
	repo   Repository
	cache  *SummaryCache
	logger *zap.Logger
}

// NewService builds the report service. cache may be nil.
func NewService(repo Repository, cache *SummaryCache, logger *zap.Logger) Service {
	return &reportService{repo: repo, cache: cache, logger: logger}
}

func (s *reportService) Summary(ctx context.Context, caller auth.Caller) (*MarketSummary, error) {
	if err := auth.RequireRole(caller, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(); ok {
			return cached, nil
		}
	}
	summary, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(summary)
	}
	return summary, nil
}

func (s *reportService) Snapshot(ctx context.Context) (*MarketSummary, error) {
	projects, err := s.repo.CountProjectsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}
	credits, err := s.repo.CountCreditsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count credits: %w", err)
	}
	active, err := s.repo.CountActiveListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	sales, volume, claimed, err := s.repo.SalesTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to total sales: %w", err)
	}

	return &MarketSummary{
		ProjectsByStatus: projects,
		CreditsByStatus:  credits,
		ActiveListings:   active,
		SalesCount:       sales,
		SalesVolume:      volume,
		ClaimedVolume:    claimed,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

func (s *reportService) ExportSales(ctx context.Context, caller auth.Caller, format string, w io.Writer) (string, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return "", err
	}
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatXLSX && format != FormatCSV {
		return "", apperrors.Validation("format must be xlsx or csv")
	}

	sales, err := s.repo.ListSellerSales(ctx, caller.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load sales: %w", err)
	}
	rows := make([]map[string]interface{}, len(sales))
	for i, sale := range sales {
		rows[i] = sale.row()
	}

	if format == FormatCSV {
		exporter := export.NewCSVExporter(w)
		if err := exporter.WriteHeader(saleColumns); err != nil {
			return "", err
		}
		if err := exporter.WriteRows(rows, saleColumns); err != nil {
			return "", err
		}
		return "text/csv", exporter.Flush()
	}

	exporter := export.NewExcelExporter(export.DefaultExcelOptions())
	defer exporter.Close()
	if err := exporter.WriteHeader(saleColumns); err != nil {
		return "", err
	}
	if err := exporter.WriteRows(rows, saleColumns); err != nil {
		return "", err
	}
	s.logger.Info("Sales export generated",
		zap.String("seller_id", caller.UserID.String()),
		zap.Int("rows", len(rows)))
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exporter.WriteTo(w)
}

func (s *reportService) WriteCertificate(ctx context.Context, caller auth.Caller, creditID uuid.UUID, w io.Writer) error {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return err
	}
	cert, err := s.repo.GetCertificate(ctx, creditID)
	if errors.Is(err, ErrCertificateNotFound) {
		return apperrors.NotFound("credit not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load credit: %w", err)
	}
	if cert.OwnerID != caller.UserID {
		return apperrors.NotFound("credit not found")
	}

	writer := export.NewCertificateWriter(export.DefaultCertificateOptions())
	return writer.Render(w, cert.ProjectName, []export.CertificateField{
		{Label: "Owner", Value: cert.OwnerEmail},
		{Label: "Token", Value: cert.TokenID},
		{Label: "Serial number", Value: strconv.FormatInt(cert.SerialNumber, 10)},
		{Label: "Status", Value: cert.Status},
		{Label: "Location", Value: cert.Location},
		{Label: "Tonnage (tCO2e)", Value: strconv.Itoa(cert.Tonnage)},
		{Label: "Vintage", Value: strconv.Itoa(cert.Vintage)},
		{Label: "Minted", Value: cert.MintedAt.UTC().Format("2006-01-02")},
		{Label: "Credit ID", Value: cert.CreditID.String()},
	})
}
