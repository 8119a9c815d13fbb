package providers

import (
	"context"

	"github.com/zatekoja/quizfunnel/internal/domain/entities"
)

// ConversionQueue decouples conversion forwarding from request handling.
type ConversionQueue interface {
	// Publish enqueues one event. It must not wait for delivery.
	Publish(ctx context.Context, event *entities.ConversionEvent) error

	// Subscribe returns a channel of queued events that is closed when ctx
	// ends or the queue is closed.
	Subscribe(ctx context.Context) (<-chan *entities.ConversionEvent, error)

	// Close releases the queue and ends every subscription.
	Close() error
}
