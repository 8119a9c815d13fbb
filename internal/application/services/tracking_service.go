package services

import (
	"context"
	"time"

	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/domain/repositories"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
)

// publishTimeout bounds the enqueue of a conversion after the request is done.
const publishTimeout = 2 * time.Second

// TrackCommand is one step update received from the browser.
type TrackCommand struct {
	Update entities.SessionUpdate

	// EventID is the dedup key the browser used for its own pixel call.
	EventID  string
	PageURL  string
	ClientIP string
	Source   string
	Language string
}

// TrackResult is what the browser gets back.
type TrackResult struct {
	Session *entities.Session
	Event   *funnel.EventDescriptor
	Pixel   *funnel.PixelCommand
}

// TrackingService persists step updates and forwards the mapped event.
type TrackingService struct {
	sessions repositories.SessionRepository
	queue    providers.ConversionQueue
	now      func() time.Time
}

// NewTrackingService creates a new tracking service. queue may be nil, in
// which case nothing is forwarded.
func NewTrackingService(sessions repositories.SessionRepository, queue providers.ConversionQueue) *TrackingService {
	return &TrackingService{
		sessions: sessions,
		queue:    queue,
		now:      time.Now,
	}
}

// Track upserts the session and enqueues the step's conversion. Enqueue
// failures are logged and never fail the call.
func (s *TrackingService) Track(ctx context.Context, cmd *TrackCommand) (*TrackResult, error) {
	ctx, span := observability.StartSpan(ctx, "TrackingService.Track")
	defer span.End()

	update := cmd.Update
	update.Completed = funnel.IsCompletion(update.Step)

	session, err := s.sessions.Upsert(ctx, &update)
	if err != nil {
		observability.RecordError(span, err)
		observability.TrackingRequests.WithLabelValues("none", observability.OutcomeError).Inc()
		return nil, err
	}

	data := funnel.Data{
		EstimatedLoss: update.EstimatedLoss,
		Source:        cmd.Source,
		Language:      cmd.Language,
	}
	if data.EstimatedLoss == nil {
		data.EstimatedLoss = session.EstimatedLoss
	}

	desc := funnel.MapStep(update.Step, funnel.Flags{ClickedOffer: update.ClickedOffer}, data)
	result := &TrackResult{Session: session, Event: desc}
	if desc == nil {
		observability.TrackingRequests.WithLabelValues("none", observability.OutcomeOK).Inc()
		return result, nil
	}

	now := s.now()
	eventID := cmd.EventID
	if eventID == "" {
		eventID = funnel.NewEventID(funnel.SessionFromID(session.SessionID), desc.Name, now)
	}
	result.Pixel = funnel.NewPixelCommand(desc, eventID)

	event := &entities.ConversionEvent{
		EventName:      desc.Name,
		EventID:        eventID,
		EventSourceURL: cmd.PageURL,
		UserData: entities.UserData{
			ExternalID:      session.SessionID,
			FBP:             entities.StringValue(session.FBP),
			FBC:             entities.StringValue(session.FBC),
			FBCLID:          entities.StringValue(session.FBCLID),
			ClientIPAddress: cmd.ClientIP,
			ClientUserAgent: update.UserAgent,
		},
		CustomData: desc.Params,
		OccurredAt: now,
		Origin:     entities.OriginTracking,
	}
	s.enqueue(ctx, event)

	observability.TrackingRequests.WithLabelValues(desc.Name, observability.OutcomeOK).Inc()
	return result, nil
}

// enqueue hands the event to the queue on a context detached from the
// request so a client disconnect does not drop it.
func (s *TrackingService) enqueue(ctx context.Context, event *entities.ConversionEvent) {
	logger := observability.LoggerFromContext(ctx)
	if s.queue == nil {
		observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeSkipped).Inc()
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.queue.Publish(pubCtx, event); err != nil {
		logger.Error().Err(err).
			Str("event_name", event.EventName).
			Str("event_id", event.EventID).
			Msg("Failed to enqueue conversion event")
		observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeError).Inc()
		return
	}
	observability.ConversionsEnqueued.WithLabelValues(event.Origin, observability.OutcomeOK).Inc()
}
