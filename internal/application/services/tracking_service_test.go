package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

func TestTrackingService_Track(t *testing.T) {
	t.Run("results step enqueues a Lead with the caller's event id", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewTrackingService(repo, queue)

		stored := &entities.Session{
			SessionID:   "sess_1",
			CurrentStep: "results",
			FBP:         strPtr("fb.1.1.1"),
			FBCLID:      strPtr("abc"),
		}
		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(u *entities.SessionUpdate) bool {
			return u.SessionID == "sess_1" && u.Step == "results" && u.Completed
		})).Return(stored, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{
				SessionID:     "sess_1",
				Step:          "results",
				EstimatedLoss: floatPtr(28),
				UserAgent:     "Mozilla/5.0",
			},
			EventID:  "sess_1_Lead_1700000000000",
			PageURL:  "https://quiz.example/results",
			ClientIP: "203.0.113.7",
		})
		require.NoError(t, err)

		assert.Same(t, stored, result.Session)
		require.NotNil(t, result.Event)
		assert.Equal(t, funnel.EventLead, result.Event.Name)
		require.NotNil(t, result.Pixel)
		assert.Equal(t, funnel.PixelMethodTrack, result.Pixel.Method)
		assert.Equal(t, "sess_1_Lead_1700000000000", result.Pixel.Options.EventID)

		published := queue.Published()
		require.Len(t, published, 1)
		event := published[0]
		assert.Equal(t, funnel.EventLead, event.EventName)
		assert.Equal(t, "sess_1_Lead_1700000000000", event.EventID)
		assert.Equal(t, "https://quiz.example/results", event.EventSourceURL)
		assert.Equal(t, entities.OriginTracking, event.Origin)
		assert.Equal(t, "sess_1", event.UserData.ExternalID)
		assert.Equal(t, "fb.1.1.1", event.UserData.FBP)
		assert.Equal(t, "abc", event.UserData.FBCLID)
		assert.Equal(t, "203.0.113.7", event.UserData.ClientIPAddress)
		assert.Equal(t, "Mozilla/5.0", event.UserData.ClientUserAgent)
		assert.Equal(t, 28.0, event.CustomData["value"])
		assert.Equal(t, "BRL", event.CustomData["currency"])
		repo.AssertExpectations(t)
	})

	t.Run("missing event id is generated and shared with the pixel command", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewTrackingService(repo, queue)

		repo.On("Upsert", mock.Anything, mock.Anything).Return(&entities.Session{SessionID: "sess_2", CurrentStep: "q3"}, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_2", Step: "q3"},
		})
		require.NoError(t, err)

		require.NotNil(t, result.Pixel)
		assert.Equal(t, funnel.PixelMethodTrackCustom, result.Pixel.Method)
		assert.True(t, strings.HasPrefix(result.Pixel.Options.EventID, "sess_2_QuizProgress_"))

		published := queue.Published()
		require.Len(t, published, 1)
		assert.Equal(t, result.Pixel.Options.EventID, published[0].EventID)
		assert.Equal(t, 3, published[0].CustomData["question"])
	})

	t.Run("stored estimated loss is used when the request omits it", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewTrackingService(repo, queue)

		repo.On("Upsert", mock.Anything, mock.Anything).Return(&entities.Session{
			SessionID:     "sess_3",
			CurrentStep:   "offer_es",
			EstimatedLoss: floatPtr(410),
		}, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_3", Step: "offer_es", ClickedOffer: true},
		})
		require.NoError(t, err)
		assert.Equal(t, funnel.EventInitiateCheckout, result.Event.Name)
		assert.Equal(t, 410.0, result.Event.Params["value"])
		assert.Equal(t, "USD", result.Event.Params["currency"])
	})

	t.Run("untracked step enqueues nothing", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewTrackingService(repo, queue)

		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(u *entities.SessionUpdate) bool {
			return !u.Completed
		})).Return(&entities.Session{SessionID: "sess_4", CurrentStep: "thank_you"}, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_4", Step: "thank_you"},
		})
		require.NoError(t, err)
		assert.Nil(t, result.Event)
		assert.Nil(t, result.Pixel)
		assert.Empty(t, queue.Published())
	})

	t.Run("enqueue failure does not fail the call", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		queue.err = errors.New("queue full")
		service := services.NewTrackingService(repo, queue)

		repo.On("Upsert", mock.Anything, mock.Anything).Return(&entities.Session{SessionID: "sess_5", CurrentStep: "landing"}, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_5", Step: "landing"},
		})
		require.NoError(t, err)
		assert.Equal(t, funnel.EventViewContent, result.Event.Name)
	})

	t.Run("persistence failure is returned", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewTrackingService(repo, queue)

		repo.On("Upsert", mock.Anything, mock.Anything).Return(nil, apperrors.NewInternalError("failed to upsert session", errors.New("disk full")))

		_, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_6", Step: "landing"},
		})
		assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(err))
		assert.Empty(t, queue.Published())
	})

	t.Run("nil queue only persists", func(t *testing.T) {
		repo := new(MockSessionRepository)
		service := services.NewTrackingService(repo, nil)

		repo.On("Upsert", mock.Anything, mock.Anything).Return(&entities.Session{SessionID: "sess_7", CurrentStep: "landing"}, nil)

		result, err := service.Track(context.Background(), &services.TrackCommand{
			Update: entities.SessionUpdate{SessionID: "sess_7", Step: "landing"},
		})
		require.NoError(t, err)
		assert.NotNil(t, result.Pixel)
	})
}
