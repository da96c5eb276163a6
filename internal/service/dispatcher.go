package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"go.uber.org/zap"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 5 * time.Minute
)

// Handler processes one delivered bus event. A non-nil error leaves the event
// for redelivery.
type Handler interface {
	Handle(ctx context.Context, ev domain.BusEvent) error
}

type HandlerFunc func(ctx context.Context, ev domain.BusEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev domain.BusEvent) error {
	return f(ctx, ev)
}

type subscription struct {
	name        string
	detailTypes []string
	handler     Handler
}

// Dispatcher delivers bus events to subscribed handlers with at-least-once
// semantics: ack on success, delayed retry on error, dead letter once attempts
// run out.
type Dispatcher struct {
	bus     domain.EventBus
	metrics *metrics.Metrics
	logger  *zap.Logger

	subs []subscription

	batchSize      int
	visibility     time.Duration
	maxAttempts    int
	handlerTimeout time.Duration

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(bus domain.EventBus, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		bus:            bus,
		metrics:        m,
		logger:         logger,
		batchSize:      cfg.BusBatchSize,
		visibility:     cfg.BusVisibilityTimeout,
		maxAttempts:    cfg.BusMaxAttempts,
		handlerTimeout: cfg.HandlerTimeout,
		interval:       cfg.BusPollInterval,
		stopCh:         make(chan struct{}),
	}
}

// Subscribe routes the given detail types to h. Call before Start.
func (d *Dispatcher) Subscribe(name string, h Handler, detailTypes ...string) {
	d.subs = append(d.subs, subscription{name: name, detailTypes: detailTypes, handler: h})
}

func (d *Dispatcher) SetInterval(dur time.Duration) {
	d.interval = dur
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.logger.Info("event dispatcher started",
			zap.Int("subscriptions", len(d.subs)),
			zap.Duration("interval", d.interval))

		for {
			select {
			case <-ticker.C:
				d.RunOnce(context.Background())
			case <-d.stopCh:
				d.logger.Info("event dispatcher stopped")
				return
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// RunOnce claims and delivers one batch per subscription. It returns the
// number of events delivered, successfully or not.
func (d *Dispatcher) RunOnce(ctx context.Context) int {
	delivered := 0
	for _, sub := range d.subs {
		events, err := d.bus.Claim(ctx, sub.detailTypes, d.batchSize, d.visibility)
		if err != nil {
			d.logger.Error("failed to claim events", zap.String("subscription", sub.name), zap.Error(err))
			continue
		}
		for _, ev := range events {
			d.deliver(ctx, sub, ev)
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, sub subscription, ev domain.BusEvent) {
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	err := sub.handler.Handle(hctx, ev)
	cancel()

	if err == nil {
		d.metrics.DeliveriesTotal.WithLabelValues(ev.DetailType, "ok").Inc()
		if ackErr := d.bus.Ack(ctx, ev.ID); ackErr != nil {
			// The lease will expire and the event is delivered again.
			d.logger.Error("failed to ack event", zap.String("event_id", ev.ID.String()), zap.Error(ackErr))
		}
		return
	}

	if ev.Attempts >= d.maxAttempts {
		d.metrics.DeliveriesTotal.WithLabelValues(ev.DetailType, "dead_letter").Inc()
		d.logger.Error("event exhausted retries, dead-lettering",
			zap.String("subscription", sub.name),
			zap.String("event_id", ev.ID.String()),
			zap.String("detail_type", ev.DetailType),
			zap.Int("attempts", ev.Attempts),
			zap.Error(err))
		if dlErr := d.bus.DeadLetter(ctx, ev.ID, err.Error()); dlErr != nil {
			d.logger.Error("failed to dead-letter event", zap.String("event_id", ev.ID.String()), zap.Error(dlErr))
		}
		return
	}

	delay := retryDelay(ev.Attempts)
	d.metrics.DeliveriesTotal.WithLabelValues(ev.DetailType, "retry").Inc()
	d.logger.Warn("event handler failed, scheduling retry",
		zap.String("subscription", sub.name),
		zap.String("event_id", ev.ID.String()),
		zap.String("detail_type", ev.DetailType),
		zap.Int("attempts", ev.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err))
	if retryErr := d.bus.Retry(ctx, ev.ID, delay, err.Error()); retryErr != nil {
		d.logger.Error("failed to schedule retry", zap.String("event_id", ev.ID.String()), zap.Error(retryErr))
	}
}

// retryDelay doubles from retryBaseDelay per attempt, capped at retryMaxDelay.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}
