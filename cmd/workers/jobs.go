package main

import (
	"context"

	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports/scheduler"
)

const (
	jobPurgeRevokedTokens = "purge-revoked-tokens"
	jobMarketSummary      = "market-summary"
)

type revocationPurger interface {
	PurgeExpiredRevocations(ctx context.Context) (int64, error)
}

type summarySource interface {
	Snapshot(ctx context.Context) (*reports.MarketSummary, error)
}

func registerJobs(m *scheduler.Manager, cfg config.WorkersConfig, purger revocationPurger, summaries summarySource, logger *zap.Logger) error {
	if err := m.Register(jobPurgeRevokedTokens, cfg.TokenPurgeSchedule, func(ctx context.Context) error {
		n, err := purger.PurgeExpiredRevocations(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Purged expired token revocations", zap.Int64("count", n))
		}
		return nil
	}); err != nil {
		return err
	}

	return m.Register(jobMarketSummary, cfg.SummarySchedule, func(ctx context.Context) error {
		summary, err := summaries.Snapshot(ctx)
		if err != nil {
			return err
		}
		logger.Info("Market summary",
			zap.Any("projects", summary.ProjectsByStatus),
			zap.Any("credits", summary.CreditsByStatus),
			zap.Int64("active_listings", summary.ActiveListings),
			zap.Int64("sales", summary.SalesCount),
			zap.String("sales_volume", summary.SalesVolume.StringFixed(2)))
		return nil
	})
}
