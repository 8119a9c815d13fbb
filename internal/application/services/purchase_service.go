package services

import (
	"context"
	"time"

	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/domain/repositories"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

// Resolution labels how a purchase was matched to a quiz session.
const (
	ResolutionIgnored      = "ignored"
	ResolutionSource       = "source"
	ResolutionLatestClick  = "latest_click"
	ResolutionUnattributed = "unattributed"
)

// PurchaseOutcome summarizes what a checkout notification caused.
type PurchaseOutcome struct {
	Resolution string
	Session    *entities.Session
	Event      *entities.ConversionEvent
}

// PurchaseService turns approved checkouts into Purchase conversions.
type PurchaseService struct {
	sessions repositories.SessionRepository
	queue    providers.ConversionQueue
	now      func() time.Time
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(sessions repositories.SessionRepository, queue providers.ConversionQueue) *PurchaseService {
	return &PurchaseService{
		sessions: sessions,
		queue:    queue,
		now:      time.Now,
	}
}

// HandleNotification ignores every status but approved. An approved
// checkout is matched to a session by utms.src, else to the latest offer
// click, and a Purchase is enqueued whether or not a session was found.
// The returned error only reports a failed enqueue.
func (s *PurchaseService) HandleNotification(ctx context.Context, n *entities.CheckoutNotification) (*PurchaseOutcome, error) {
	ctx, span := observability.StartSpan(ctx, "PurchaseService.HandleNotification")
	defer span.End()

	logger := observability.LoggerFromContext(ctx)

	if n.PaymentStatus != entities.PaymentStatusApproved {
		logger.Info().Str("payment_status", n.PaymentStatus).Str("token", n.Token()).Msg("Ignoring non-approved checkout notification")
		observability.WebhookNotifications.WithLabelValues(statusLabel(n.PaymentStatus), ResolutionIgnored).Inc()
		return &PurchaseOutcome{Resolution: ResolutionIgnored}, nil
	}

	session, resolution := s.resolveSession(ctx, n)
	event := s.buildPurchase(n, session)
	observability.WebhookNotifications.WithLabelValues(entities.PaymentStatusApproved, resolution).Inc()

	outcome := &PurchaseOutcome{Resolution: resolution, Session: session, Event: event}

	if s.queue == nil {
		observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeSkipped).Inc()
		return outcome, nil
	}
	// The provider may hang up once it has sent the callback; the Purchase
	// must still reach the queue.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.queue.Publish(pubCtx, event); err != nil {
		observability.RecordError(span, err)
		observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeError).Inc()
		return outcome, apperrors.NewInternalError("failed to enqueue purchase", err)
	}
	observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeOK).Inc()

	logger.Info().
		Str("token", n.Token()).
		Str("resolution", resolution).
		Float64("value", n.AmountMajor()).
		Msg("Purchase conversion enqueued")
	return outcome, nil
}

func (s *PurchaseService) resolveSession(ctx context.Context, n *entities.CheckoutNotification) (*entities.Session, string) {
	logger := observability.LoggerFromContext(ctx)

	if src := n.SourceSessionID(); src != "" {
		session, err := s.sessions.GetBySessionID(ctx, src)
		if err == nil {
			return session, ResolutionSource
		}
		if !apperrors.IsNotFound(err) {
			logger.Warn().Err(err).Str("session_id", src).Msg("Failed to look up checkout source session")
		}
	}

	session, err := s.sessions.FindLatestClickedOffer(ctx)
	if err == nil {
		return session, ResolutionLatestClick
	}
	if !apperrors.IsNotFound(err) {
		logger.Warn().Err(err).Msg("Failed to look up latest offer click")
	}
	return nil, ResolutionUnattributed
}

func (s *PurchaseService) buildPurchase(n *entities.CheckoutNotification, session *entities.Session) *entities.ConversionEvent {
	currency := "BRL"
	userData := entities.UserData{
		Email: n.Customer.Email,
		Phone: n.Customer.Cellphone,
	}
	if session != nil {
		currency = funnel.Currency(session.CurrentStep)
		userData.ExternalID = session.SessionID
		userData.FBP = entities.StringValue(session.FBP)
		userData.FBC = entities.StringValue(session.FBC)
		userData.FBCLID = entities.StringValue(session.FBCLID)
		userData.ClientUserAgent = entities.StringValue(session.UserAgent)
	}

	contentIDs := make([]string, 0, len(n.Products))
	for _, p := range n.Products {
		if p.Code != "" {
			contentIDs = append(contentIDs, p.Code)
		}
	}

	customData := map[string]any{
		"value":    n.AmountMajor(),
		"currency": currency,
	}
	if len(contentIDs) > 0 {
		customData["content_ids"] = contentIDs
		customData["content_type"] = "product"
	}

	token := n.Token()
	var eventID string
	if token != "" {
		customData["order_id"] = token
		eventID = "purchase_" + token
	}

	return &entities.ConversionEvent{
		EventName:  funnel.EventPurchase,
		EventID:    eventID,
		UserData:   userData,
		CustomData: customData,
		OccurredAt: s.now(),
		Origin:     entities.OriginWebhook,
	}
}

// statusLabel keeps the metric label set bounded.
func statusLabel(status string) string {
	switch status {
	case "pending", "refused", "in_process", "chargeback", "refunded", "canceled":
		return status
	case "":
		return "missing"
	}
	return "other"
}
