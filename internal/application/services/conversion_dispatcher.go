package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig sizes the conversion worker pool.
type DispatcherConfig struct {
	Workers     int
	SendTimeout time.Duration
}

// ConversionDispatcher drains the conversion queue into the Conversions API.
// Each job is sent once; failures are logged and counted, not retried.
type ConversionDispatcher struct {
	queue  providers.ConversionQueue
	sender providers.ConversionsSender
	cfg    DispatcherConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// NewConversionDispatcher creates a dispatcher; call Start to run it.
func NewConversionDispatcher(queue providers.ConversionQueue, sender providers.ConversionsSender, cfg DispatcherConfig) *ConversionDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &ConversionDispatcher{queue: queue, sender: sender, cfg: cfg}
}

// Start subscribes to the queue and launches the workers. It returns once
// the subscription is in place.
func (d *ConversionDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("conversion dispatcher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, err := d.queue.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to conversion queue: %w", err)
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		group.Go(func() error {
			d.work(groupCtx, worker, events)
			return nil
		})
	}

	d.cancel = cancel
	d.group = group
	d.started = true

	log.Info().Int("workers", d.cfg.Workers).Dur("send_timeout", d.cfg.SendTimeout).Msg("Conversion dispatcher started")
	return nil
}

func (d *ConversionDispatcher) work(ctx context.Context, worker int, events <-chan *entities.ConversionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, worker, event)
		}
	}
}

// dispatch sends one event. The send gets its own timeout so a shutdown
// in progress does not cut short a request already on the wire.
func (d *ConversionDispatcher) dispatch(ctx context.Context, worker int, event *entities.ConversionEvent) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(sendCtx, event)
	observability.ConversionSendDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().Err(err).
			Int("worker", worker).
			Str("event_name", event.EventName).
			Str("event_id", event.EventID).
			Str("origin", event.Origin).
			Msg("Failed to send conversion event")
		observability.ConversionsSent.WithLabelValues(event.EventName, observability.OutcomeError).Inc()
		return
	}

	log.Debug().
		Int("worker", worker).
		Str("event_name", event.EventName).
		Str("event_id", event.EventID).
		Msg("Conversion event sent")
	observability.ConversionsSent.WithLabelValues(event.EventName, observability.OutcomeOK).Inc()
}

// Stop cancels the subscription and waits for in-flight sends to finish.
func (d *ConversionDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	cancel, group := d.cancel, d.group
	d.started = false
	d.mu.Unlock()

	cancel()
	_ = group.Wait()
	log.Info().Msg("Conversion dispatcher stopped")
}
