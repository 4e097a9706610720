package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports"
	"carbon-scribe/marketplace/marketplace-backend/internal/reports/scheduler"
)

type mockPurger struct{ mock.Mock }

func (m *mockPurger) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockSummaries struct{ mock.Mock }

func (m *mockSummaries) Snapshot(ctx context.Context) (*reports.MarketSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reports.MarketSummary), args.Error(1)
}

func TestRegisterJobs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	m := scheduler.NewManager(logger, time.Second)

	purger := new(mockPurger)
	purger.On("PurgeExpiredRevocations", mock.Anything).Return(int64(3), nil).Once()
	summaries := new(mockSummaries)
	summaries.On("Snapshot", mock.Anything).Return(&reports.MarketSummary{
		ActiveListings: 2,
		SalesCount:     5,
		SalesVolume:    decimal.RequireFromString("120.5"),
	}, nil).Once()

	require.NoError(t, registerJobs(m, config.Default().Workers, purger, summaries, logger))

	require.NoError(t, m.RunNow(context.Background(), jobPurgeRevokedTokens))
	require.NoError(t, m.RunNow(context.Background(), jobMarketSummary))
	purger.AssertExpectations(t)
	summaries.AssertExpectations(t)

	entries := logs.FilterMessage("Market summary").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "120.50", entries[0].ContextMap()["sales_volume"])
	assert.Equal(t, 1, logs.FilterMessage("Purged expired token revocations").Len())
}

func TestRegisterJobsPropagatesFailures(t *testing.T) {
	m := scheduler.NewManager(zap.NewNop(), 0)
	purger := new(mockPurger)
	purger.On("PurgeExpiredRevocations", mock.Anything).Return(int64(0), errors.New("db down"))

	require.NoError(t, registerJobs(m, config.Default().Workers, purger, new(mockSummaries), zap.NewNop()))
	assert.Error(t, m.RunNow(context.Background(), jobPurgeRevokedTokens))
}

func TestRegisterJobsRejectsBadSchedule(t *testing.T) {
	m := scheduler.NewManager(zap.NewNop(), 0)
	cfg := config.WorkersConfig{TokenPurgeSchedule: "not a schedule", SummarySchedule: "@hourly"}
	assert.Error(t, registerJobs(m, cfg, new(mockPurger), new(mockSummaries), zap.NewNop()))
}
