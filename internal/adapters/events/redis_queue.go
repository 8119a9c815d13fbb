package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	redisclient "github.com/zatekoja/quizfunnel/internal/infrastructure/clients/redis"
)

// popTimeout bounds each BRPOP so subscribers notice shutdown.
const popTimeout = time.Second

// requeueTimeout bounds the push-back of an event popped during shutdown.
const requeueTimeout = 2 * time.Second

// RedisQueue implements ConversionQueue on a Redis list. Publish pushes on
// the left and subscribers pop from the right. A subscriber holds at most
// one popped event and pushes it back if it stops before a worker takes it,
// so queued events survive a restart of the consuming process.
type RedisQueue struct {
	client *redisclient.Client
	key    string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ providers.ConversionQueue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue backed by the list at key
func NewRedisQueue(client *redisclient.Client, key string) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client: client,
		key:    key,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish pushes one event onto the list
func (q *RedisQueue) Publish(ctx context.Context, event *entities.ConversionEvent) error {
	if q.ctx.Err() != nil {
		return fmt.Errorf("conversion queue is closed")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion event: %w", err)
	}

	if err := q.client.Client().LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue conversion event: %w", err)
	}

	log.Debug().Str("key", q.key).Str("event_name", event.EventName).Str("event_id", event.EventID).Msg("Enqueued conversion event")
	return nil
}

// Subscribe starts a consumer loop. The channel closes when ctx ends or the
// queue is closed.
func (q *RedisQueue) Subscribe(ctx context.Context) (<-chan *entities.ConversionEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return nil, fmt.Errorf("conversion queue is closed")
	}

	out := make(chan *entities.ConversionEvent)
	q.wg.Add(1)
	go q.receive(ctx, out)

	log.Info().Str("key", q.key).Msg("Subscribed to conversion queue")
	return out, nil
}

func (q *RedisQueue) receive(ctx context.Context, out chan<- *entities.ConversionEvent) {
	defer q.wg.Done()
	defer close(out)

	for {
		if ctx.Err() != nil || q.ctx.Err() != nil {
			return
		}

		result, err := q.client.Client().BRPop(q.ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if q.ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("key", q.key).Msg("Failed to pop conversion event")
			select {
			case <-time.After(popTimeout):
			case <-ctx.Done():
				return
			case <-q.ctx.Done():
				return
			}
			continue
		}

		// BRPOP replies with [key, value].
		if len(result) != 2 {
			continue
		}

		var event entities.ConversionEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			log.Error().Err(err).Str("key", q.key).Msg("Dropping undecodable conversion event")
			continue
		}

		select {
		case out <- &event:
		case <-ctx.Done():
			q.requeue(result[1])
			return
		case <-q.ctx.Done():
			q.requeue(result[1])
			return
		}
	}
}

// requeue puts an undelivered event back on the consuming end of the list.
func (q *RedisQueue) requeue(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()

	if err := q.client.Client().RPush(ctx, q.key, payload).Err(); err != nil {
		log.Error().Err(err).Str("key", q.key).Msg("Failed to requeue conversion event")
	}
}

// Close stops every consumer loop and waits for them to exit. The Redis
// client itself is owned by the caller.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	log.Info().Str("key", q.key).Msg("Conversion queue closed")
	return nil
}
