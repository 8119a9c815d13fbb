//go:build integration

package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	redisclient "github.com/zatekoja/quizfunnel/internal/infrastructure/clients/redis"
	"github.com/zatekoja/quizfunnel/pkg/config"
)

func newRedisClient(t *testing.T) *redisclient.Client {
	t.Helper()
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redisclient.NewClient(ctx, &config.RedisConfig{Host: host, Port: 6379})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueue_PublishSubscribe(t *testing.T) {
	client := newRedisClient(t)
	key := "quizfunnel:test:" + t.Name()
	client.Client().Del(context.Background(), key)

	queue := NewRedisQueue(client, key)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Events published before the consumer starts are kept in the list.
	require.NoError(t, queue.Publish(ctx, &entities.ConversionEvent{EventName: "ViewContent", EventID: "e1"}))

	events, err := queue.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Publish(ctx, &entities.ConversionEvent{EventName: "Lead", EventID: "e2"}))

	first := receive(t, events)
	second := receive(t, events)
	assert.Equal(t, "e1", first.EventID)
	assert.Equal(t, "e2", second.EventID)
}

func TestRedisQueue_CloseEndsSubscription(t *testing.T) {
	client := newRedisClient(t)
	queue := NewRedisQueue(client, "quizfunnel:test:"+t.Name())

	events, err := queue.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, queue.Close())

	_, ok := <-events
	assert.False(t, ok)
	assert.Error(t, queue.Publish(context.Background(), &entities.ConversionEvent{EventName: "Lead"}))
}

func TestRedisQueue_UndeliveredEventIsRequeued(t *testing.T) {
	client := newRedisClient(t)
	key := "quizfunnel:test:" + t.Name()
	client.Client().Del(context.Background(), key)

	queue := NewRedisQueue(client, key)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := queue.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Publish(context.Background(), &entities.ConversionEvent{EventName: "Purchase", EventID: "purchase_tok_1"}))

	// The consumer pops the event and waits for a reader that never comes.
	require.Eventually(t, func() bool {
		return client.Client().LLen(context.Background(), key).Val() == 0
	}, 3*time.Second, 20*time.Millisecond)
	cancel()

	for range events {
	}
	assert.Equal(t, int64(1), client.Client().LLen(context.Background(), key).Val())

	again, err := queue.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "purchase_tok_1", receive(t, again).EventID)
}
