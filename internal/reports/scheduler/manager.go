package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of periodic maintenance work.
type Job func(ctx context.Context) error

// Manager runs named jobs on cron schedules (with a seconds field). A job
// still running when its next tick arrives is skipped for that tick.
type Manager struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	jobs    map[string]Job
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.RWMutex
	running bool
}

func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]Job),
		timeout: timeout,
		logger:  logger,
	}
}

// Register schedules job under name. Names are unique.
func (m *Manager) Register(name, spec string, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	id, err := m.cron.AddFunc(spec, func() { m.run(context.Background(), name, job) })
	if err != nil {
		return fmt.Errorf("invalid schedule for %q: %w", name, err)
	}
	m.entries[name] = id
	m.jobs[name] = job
	return nil
}

// RunNow executes a registered job immediately on the caller's goroutine.
func (m *Manager) RunNow(ctx context.Context, name string) error {
	m.mu.RLock()
	job, ok := m.jobs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return m.run(ctx, name, job)
}

// Next reports when name is next due. It is zero before Start.
func (m *Manager) Next(name string) time.Time {
	m.mu.RLock()
	id, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return m.cron.Entry(id).Next
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("scheduler already running")
	}
	m.running = true
	m.logger.Info("Starting scheduler", zap.Int("jobs", len(m.jobs)))
	m.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.logger.Info("Stopping scheduler")
	<-m.cron.Stop().Done()
	m.running = false
}

func (m *Manager) run(ctx context.Context, name string, job Job) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job(ctx)
	if err != nil {
		m.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}
	m.logger.Debug("Job completed",
		zap.String("job", name),
		zap.Duration("duration", time.Since(start)))
	return nil
}
