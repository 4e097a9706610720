package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
)

// Publisher accepts events for transitions that already committed.
// Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Sink delivers an event over one channel
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// DeliveryObserver is told about every sink delivery attempt.
type DeliveryObserver func(sink string, err error)

const deliveryTimeout = 10 * time.Second

// Service persists marketplace events and fans them out to the configured sinks
type Service struct {
	repo     Repository
	sinks    []Sink
	logger   *zap.Logger
	observer DeliveryObserver

	queue   chan Event
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

func NewService(repo Repository, logger *zap.Logger, sinks ...Sink) *Service {
	return &Service{
		repo:   repo,
		sinks:  sinks,
		logger: logger,
	}
}

// SetObserver registers a callback for delivery outcomes.
func (s *Service) SetObserver(observer DeliveryObserver) {
	s.observer = observer
}

// Start runs workers that drain the queue. Without Start, Publish delivers inline.
func (s *Service) Start(workers, queueSize int) {
	if workers < 1 {
		workers = 1
	}
	s.queue = make(chan Event, queueSize)
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for evt := range s.queue {
				ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
				s.Deliver(ctx, evt)
				cancel()
			}
		}()
	}
}

// Publish queues evt for delivery. A full queue drops the event with a warning.
func (s *Service) Publish(ctx context.Context, evt Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		s.logger.Warn("Event published after shutdown", zap.String("event_type", string(evt.Type)))
		return
	}
	if s.queue == nil {
		s.Deliver(context.WithoutCancel(ctx), evt)
		return
	}

	select {
	case s.queue <- evt:
	default:
		s.logger.Warn("Event queue full, dropping event",
			zap.String("event_id", evt.ID.String()),
			zap.String("event_type", string(evt.Type)))
	}
}

// Deliver stores evt and hands it to every sink. Sink failures are logged only.
func (s *Service) Deliver(ctx context.Context, evt Event) {
	if s.repo != nil {
		record, err := recordFromEvent(evt)
		if err == nil {
			err = s.repo.Save(ctx, record)
		}
		if err != nil {
			s.logger.Error("Failed to store event",
				zap.String("event_id", evt.ID.String()),
				zap.Error(err))
		}
	}

	for _, sink := range s.sinks {
		err := sink.Deliver(ctx, evt)
		if s.observer != nil {
			s.observer(sink.Name(), err)
		}
		if err != nil {
			s.logger.Warn("Event delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", evt.ID.String()),
				zap.String("event_type", string(evt.Type)),
				zap.Error(err))
		}
	}
}

// Close stops accepting events and waits for queued deliveries.
func (s *Service) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
}

// ListForUser returns events addressed to userID, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]EventRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.repo.ListForRecipient(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return records, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.repo.MarkRead(ctx, id, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark event read: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("notification not found")
	}
	return nil
}
