package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
)

// ConversionsTopic is the watermill topic of the in-process queue.
const ConversionsTopic = "conversions"

// MemoryQueue is an in-process conversion queue on a watermill GoChannel.
// Events published while nobody is subscribed are dropped, so the
// dispatcher must subscribe before traffic is accepted.
type MemoryQueue struct {
	pubSub *gochannel.GoChannel
	buffer int

	mu     sync.Mutex
	closed bool
}

var _ providers.ConversionQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an in-process queue. buffer sizes each
// subscriber's output channel.
func NewMemoryQueue(buffer int, logger watermill.LoggerAdapter) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &MemoryQueue{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(buffer),
		}, logger),
		buffer: buffer,
	}
}

// Publish enqueues the event without waiting for it to be consumed.
func (q *MemoryQueue) Publish(ctx context.Context, event *entities.ConversionEvent) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("conversion queue is closed")
	}

	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	if err := q.pubSub.Publish(ConversionsTopic, msg); err != nil {
		return fmt.Errorf("failed to publish conversion event: %w", err)
	}
	return nil
}

// Subscribe acknowledges each message as soon as it is decoded and hands
// the event to the returned channel.
func (q *MemoryQueue) Subscribe(ctx context.Context) (<-chan *entities.ConversionEvent, error) {
	messages, err := q.pubSub.Subscribe(ctx, ConversionsTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to conversions: %w", err)
	}

	out := make(chan *entities.ConversionEvent, q.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			event, err := decodeMessage(msg)
			msg.Ack()
			if err != nil {
				log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable conversion event")
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops the queue and closes every subscription channel.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	return q.pubSub.Close()
}

func encodeMessage(event *entities.ConversionEvent) (*message.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversion event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("event_name", event.EventName)
	msg.Metadata.Set("origin", event.Origin)
	return msg, nil
}

func decodeMessage(msg *message.Message) (*entities.ConversionEvent, error) {
	var event entities.ConversionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversion event: %w", err)
	}
	return &event, nil
}
