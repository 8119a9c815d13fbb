package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

func approvedNotification(src string) *entities.CheckoutNotification {
	n := &entities.CheckoutNotification{
		TansactionToken:   "tok_123",
		TransactionAmount: 9790,
		PaymentStatus:     entities.PaymentStatusApproved,
		Products:          []entities.CheckoutProduct{{Title: "Method", Code: "PROD-1", Amount: 9790, Quantity: 1}},
		Customer: entities.CheckoutCustomer{
			FullName:  "Maria Silva",
			Email:     "maria@example.com",
			Cellphone: "+55 11 98888-7777",
		},
	}
	if src != "" {
		n.UTMs = &entities.CheckoutUTMs{Src: src}
	}
	return n
}

func TestPurchaseService_HandleNotification(t *testing.T) {
	for _, status := range []string{"pending", "refused", "in_process", "chargeback", "refunded", ""} {
		t.Run("ignores status "+status, func(t *testing.T) {
			repo := new(MockSessionRepository)
			queue := newRecordingQueue()
			service := services.NewPurchaseService(repo, queue)

			n := approvedNotification("sess_1")
			n.PaymentStatus = status

			outcome, err := service.HandleNotification(context.Background(), n)
			require.NoError(t, err)
			assert.Equal(t, services.ResolutionIgnored, outcome.Resolution)
			assert.Empty(t, queue.Published())
			repo.AssertNotCalled(t, "GetBySessionID", mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "FindLatestClickedOffer", mock.Anything)
		})
	}

	t.Run("resolves the session from utms.src", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewPurchaseService(repo, queue)

		session := &entities.Session{
			SessionID:   "sess_1",
			CurrentStep: "offer",
			FBP:         strPtr("fb.1.1.1"),
			FBC:         strPtr("fb.1.1.abc"),
			UserAgent:   strPtr("Mozilla/5.0"),
		}
		repo.On("GetBySessionID", mock.Anything, "sess_1").Return(session, nil)

		outcome, err := service.HandleNotification(context.Background(), approvedNotification("sess_1"))
		require.NoError(t, err)
		assert.Equal(t, services.ResolutionSource, outcome.Resolution)

		published := queue.Published()
		require.Len(t, published, 1)
		event := published[0]
		assert.Equal(t, funnel.EventPurchase, event.EventName)
		assert.Equal(t, "purchase_tok_123", event.EventID)
		assert.Equal(t, entities.OriginWebhook, event.Origin)
		assert.Equal(t, 97.9, event.CustomData["value"])
		assert.Equal(t, "BRL", event.CustomData["currency"])
		assert.Equal(t, "tok_123", event.CustomData["order_id"])
		assert.Equal(t, []string{"PROD-1"}, event.CustomData["content_ids"])
		assert.Equal(t, "sess_1", event.UserData.ExternalID)
		assert.Equal(t, "fb.1.1.1", event.UserData.FBP)
		assert.Equal(t, "fb.1.1.abc", event.UserData.FBC)
		assert.Equal(t, "maria@example.com", event.UserData.Email)
		assert.Equal(t, "+55 11 98888-7777", event.UserData.Phone)
		repo.AssertNotCalled(t, "FindLatestClickedOffer", mock.Anything)
	})

	t.Run("falls back to the latest offer click", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewPurchaseService(repo, queue)

		repo.On("GetBySessionID", mock.Anything, "sess_unknown").Return(nil, apperrors.NewNotFoundError("session not found"))
		repo.On("FindLatestClickedOffer", mock.Anything).Return(&entities.Session{SessionID: "sess_es", CurrentStep: "offer_es"}, nil)

		outcome, err := service.HandleNotification(context.Background(), approvedNotification("sess_unknown"))
		require.NoError(t, err)
		assert.Equal(t, services.ResolutionLatestClick, outcome.Resolution)

		published := queue.Published()
		require.Len(t, published, 1)
		assert.Equal(t, "sess_es", published[0].UserData.ExternalID)
		assert.Equal(t, "USD", published[0].CustomData["currency"])
		repo.AssertExpectations(t)
	})

	t.Run("forwards unattributed purchases with buyer identity only", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		service := services.NewPurchaseService(repo, queue)

		repo.On("FindLatestClickedOffer", mock.Anything).Return(nil, errors.New("connection refused"))

		n := approvedNotification("")
		n.TansactionToken = ""
		n.TransactionToken = "tok_alt"

		outcome, err := service.HandleNotification(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, services.ResolutionUnattributed, outcome.Resolution)
		assert.Nil(t, outcome.Session)

		published := queue.Published()
		require.Len(t, published, 1)
		assert.Equal(t, "purchase_tok_alt", published[0].EventID)
		assert.Empty(t, published[0].UserData.ExternalID)
		assert.Equal(t, "maria@example.com", published[0].UserData.Email)
		repo.AssertNotCalled(t, "GetBySessionID", mock.Anything, mock.Anything)
	})

	t.Run("reports a failed enqueue", func(t *testing.T) {
		repo := new(MockSessionRepository)
		queue := newRecordingQueue()
		queue.err = errors.New("closed")
		service := services.NewPurchaseService(repo, queue)

		repo.On("FindLatestClickedOffer", mock.Anything).Return(nil, apperrors.NewNotFoundError("none"))

		_, err := service.HandleNotification(context.Background(), approvedNotification(""))
		assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(err))
	})
}

func TestPurchaseService_EnqueuesAfterCallerHangsUp(t *testing.T) {
	repo := new(MockSessionRepository)
	queue := newRecordingQueue()
	queue.honorContext = true
	service := services.NewPurchaseService(repo, queue)

	repo.On("GetBySessionID", mock.Anything, "sess_1").
		Return(&entities.Session{SessionID: "sess_1", CurrentStep: "offer"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := service.HandleNotification(ctx, approvedNotification("sess_1"))
	require.NoError(t, err)
	assert.Equal(t, services.ResolutionSource, outcome.Resolution)

	published := queue.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "purchase_tok_123", published[0].EventID)
}
