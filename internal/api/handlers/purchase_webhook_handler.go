package handlers

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
)

const maxWebhookBody = 1 << 20

// PurchaseService defines the interface for checkout notifications
type PurchaseService interface {
	HandleNotification(ctx context.Context, n *entities.CheckoutNotification) (*services.PurchaseOutcome, error)
}

// PurchaseWebhookHandler receives payment callbacks from the checkout provider
type PurchaseWebhookHandler struct {
	service PurchaseService
}

// NewPurchaseWebhookHandler creates a new purchase webhook handler
func NewPurchaseWebhookHandler(service PurchaseService) *PurchaseWebhookHandler {
	return &PurchaseWebhookHandler{service: service}
}

// HandleWebhook handles POST /api/vega-webhook. Once the payload parses the
// provider always gets 200 so it does not retry; failures are only logged.
func (h *PurchaseWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context())

	var notification entities.CheckoutNotification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&notification); err != nil {
		logger.Error().Err(err).Msg("Failed to parse checkout notification")
		respondWithError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	outcome, err := h.service.HandleNotification(r.Context(), &notification)
	if err != nil {
		logger.Error().Err(err).
			Str("token", notification.Token()).
			Str("payment_status", notification.PaymentStatus).
			Msg("Checkout notification not forwarded")
	} else {
		logger.Info().
			Str("token", notification.Token()).
			Str("payment_status", notification.PaymentStatus).
			Str("resolution", outcome.Resolution).
			Msg("Checkout notification processed")
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
