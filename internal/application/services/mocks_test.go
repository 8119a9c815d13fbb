package services_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
)

// Mocks

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Upsert(ctx context.Context, update *entities.SessionUpdate) (*entities.Session, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Session), args.Error(1)
}

func (m *MockSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Session), args.Error(1)
}

func (m *MockSessionRepository) FindLatestClickedOffer(ctx context.Context) (*entities.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Session), args.Error(1)
}

// recordingQueue keeps published events and can be told to fail.
type recordingQueue struct {
	mu        sync.Mutex
	published []*entities.ConversionEvent
	err       error
	events    chan *entities.ConversionEvent

	// honorContext makes Publish fail on a done context, like the Redis queue.
	honorContext bool
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{events: make(chan *entities.ConversionEvent, 16)}
}

func (q *recordingQueue) Publish(ctx context.Context, event *entities.ConversionEvent) error {
	if q.err != nil {
		return q.err
	}
	if q.honorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	q.mu.Lock()
	q.published = append(q.published, event)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) Subscribe(ctx context.Context) (<-chan *entities.ConversionEvent, error) {
	return q.events, nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) Published() []*entities.ConversionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*entities.ConversionEvent(nil), q.published...)
}

type MockConversionsSender struct {
	mock.Mock
}

func (m *MockConversionsSender) Send(ctx context.Context, event *entities.ConversionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
