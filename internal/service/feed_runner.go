package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"go.uber.org/zap"
)

// BatchHandler consumes change records in order and reports how many it handled.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []domain.ChangeRecord) (int, error)
}

// FeedRunner polls the change feed and hands batches to the classifier,
// checkpointing only what was handled.
type FeedRunner struct {
	feed    domain.ChangeFeed
	handler BatchHandler
	logger  *zap.Logger

	consumer       string
	batchSize      int
	handlerTimeout time.Duration

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewFeedRunner(feed domain.ChangeFeed, handler BatchHandler, cfg *config.Config, logger *zap.Logger) *FeedRunner {
	return &FeedRunner{
		feed:           feed,
		handler:        handler,
		logger:         logger,
		consumer:       cfg.FeedConsumer,
		batchSize:      cfg.FeedBatchSize,
		handlerTimeout: cfg.HandlerTimeout,
		interval:       cfg.FeedPollInterval,
		stopCh:         make(chan struct{}),
	}
}

func (r *FeedRunner) SetInterval(d time.Duration) {
	r.interval = d
}

// Start polls the feed on a fixed interval in a background goroutine.
func (r *FeedRunner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info("change feed runner started",
			zap.String("consumer", r.consumer),
			zap.Duration("interval", r.interval))

		for {
			select {
			case <-ticker.C:
				r.drain()
			case <-r.stopCh:
				r.logger.Info("change feed runner stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the runner.
func (r *FeedRunner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *FeedRunner) drain() {
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.handlerTimeout)
		n, err := r.RunOnce(ctx)
		cancel()
		if err != nil {
			r.logger.Error("change feed batch failed", zap.String("consumer", r.consumer), zap.Error(err))
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

// RunOnce reads and handles one batch. It returns the number of records read.
func (r *FeedRunner) RunOnce(ctx context.Context) (int, error) {
	records, err := r.feed.ReadBatch(ctx, r.consumer, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	processed, handleErr := r.handler.HandleBatch(ctx, records)
	if processed > 0 {
		last := records[processed-1].Seq
		if err := r.feed.Checkpoint(ctx, r.consumer, last); err != nil {
			return len(records), fmt.Errorf("checkpoint after seq %d: %w", last, err)
		}
		r.logger.Debug("change batch handled",
			zap.Int("read", len(records)),
			zap.Int("processed", processed),
			zap.Int64("checkpoint", last))
	}
	if handleErr != nil {
		return len(records), handleErr
	}
	return len(records), nil
}
