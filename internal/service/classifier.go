package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/Harshitk-cp/tenantops/internal/store"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Classifier turns tenant change records into lifecycle events.
type Classifier struct {
	tenants   domain.TenantStore
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	clock       clock.Clock
	callTimeout time.Duration
}

func NewClassifier(ts domain.TenantStore, pub domain.EventPublisher, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Classifier {
	return &Classifier{
		tenants:     ts,
		publisher:   pub,
		metrics:     m,
		logger:      logger,
		clock:       clock.New(),
		callTimeout: cfg.CallTimeout,
	}
}

func (c *Classifier) SetClock(clk clock.Clock) {
	c.clock = clk
}

// Classify maps one change record to a lifecycle event. A nil event with a nil
// error means the record is skipped. An INSERT first claims the tenant with a
// PENDING -> PROVISIONING conditional update; losing that condition (for
// example on redelivery) skips the record.
func (c *Classifier) Classify(ctx context.Context, rec domain.ChangeRecord) (*domain.LifecycleEvent, error) {
	tenantID, ok := domain.TenantIDFromKey(rec.PartitionKey, rec.SortKey)
	if !ok {
		return nil, nil
	}

	oldImage, err := domain.DecodeTenantImage(rec.OldImage)
	if err != nil {
		c.logger.Warn("skipping change with unreadable old image", zap.Int64("seq", rec.Seq), zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, nil
	}
	newImage, err := domain.DecodeTenantImage(rec.NewImage)
	if err != nil {
		c.logger.Warn("skipping change with unreadable new image", zap.Int64("seq", rec.Seq), zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, nil
	}

	switch rec.Kind {
	case domain.ChangeInsert:
		if newImage == nil {
			c.logger.Warn("skipping insert without new image", zap.Int64("seq", rec.Seq), zap.String("tenant_id", tenantID))
			return nil, nil
		}
		if err := c.claimForProvisioning(ctx, tenantID); err != nil {
			if errors.Is(err, store.ErrConditionFailed) {
				c.logger.Info("tenant already claimed for provisioning, skipping insert",
					zap.Int64("seq", rec.Seq), zap.String("tenant_id", tenantID))
				return nil, nil
			}
			return nil, err
		}
		return c.newEvent(rec, tenantID, domain.EventOnboarding, newImage, nil), nil

	case domain.ChangeRemove:
		return c.newEvent(rec, tenantID, domain.EventOffboarding, oldImage, nil), nil

	case domain.ChangeModify:
		if oldImage == nil || newImage == nil {
			c.logger.Warn("skipping modify without both images", zap.Int64("seq", rec.Seq), zap.String("tenant_id", tenantID))
			return nil, nil
		}
		if newImage.Status == domain.TenantStatusDeleted && oldImage.Status != domain.TenantStatusDeleted {
			return c.newEvent(rec, tenantID, domain.EventOffboarding, newImage, nil), nil
		}
		if newImage.Status != oldImage.Status || newImage.Tier != oldImage.Tier {
			return c.newEvent(rec, tenantID, domain.EventUpdated, newImage, oldImage), nil
		}
		// Touches to other fields (timestamps, resource pointers, provisioning
		// status written by this pipeline) are not actionable.
		return nil, nil

	default:
		c.logger.Warn("skipping change of unknown kind", zap.Int64("seq", rec.Seq), zap.String("kind", string(rec.Kind)))
		return nil, nil
	}
}

func (c *Classifier) claimForProvisioning(ctx context.Context, tenantID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.tenants.TransitionProvisioning(ctx, tenantID, domain.ProvisioningPending, domain.ProvisioningInProgress, c.clock.Now().UTC())
}

func (c *Classifier) newEvent(rec domain.ChangeRecord, tenantID string, typ domain.LifecycleEventType, image, previous *domain.TenantRecord) *domain.LifecycleEvent {
	ev := &domain.LifecycleEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: typ,
		Timestamp: c.clock.Now().UTC(),
		Details: map[string]string{
			"changeSeq":  strconv.FormatInt(rec.Seq, 10),
			"changeKind": string(rec.Kind),
		},
	}
	if image != nil {
		ev.TenantSlug = image.Slug
		ev.TenantTier = image.Tier
		if image.Status != "" {
			ev.Details["status"] = string(image.Status)
		}
	}
	if previous != nil && previous.Tier != ev.TenantTier {
		ev.PreviousTier = previous.Tier
	}
	return ev
}

// HandleBatch classifies records in arrival order and publishes the actionable
// events as one batch. Publish failures are logged and never returned. A store
// error stops the batch: processed counts the records handled before it, so the
// caller can checkpoint them and redeliver the rest.
func (c *Classifier) HandleBatch(ctx context.Context, records []domain.ChangeRecord) (int, error) {
	var (
		events    []*domain.LifecycleEvent
		processed int
		batchErr  error
	)

	for _, rec := range records {
		ev, err := c.Classify(ctx, rec)
		if err != nil {
			c.metrics.ChangesProcessedTotal.WithLabelValues("error").Inc()
			c.logger.Error("failed to classify change",
				zap.Int64("seq", rec.Seq),
				zap.String("pk", rec.PartitionKey),
				zap.Error(err))
			batchErr = err
			break
		}
		processed++
		if ev == nil {
			c.metrics.ChangesProcessedTotal.WithLabelValues("skipped").Inc()
			continue
		}
		c.metrics.ChangesProcessedTotal.WithLabelValues(string(ev.EventType)).Inc()
		events = append(events, ev)
	}

	c.publish(ctx, events)
	return processed, batchErr
}

func (c *Classifier) publish(ctx context.Context, events []*domain.LifecycleEvent) {
	if len(events) == 0 {
		return
	}

	entries := make([]domain.BusEntry, len(events))
	for i, ev := range events {
		entries[i] = domain.BusEntry{
			DetailType: ev.EventType.DetailType(),
			Source:     domain.SourceClassifier,
			Detail:     ev,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	outcomes, err := c.publisher.Publish(ctx, entries...)
	if err != nil {
		for _, ev := range events {
			c.metrics.PublishFailuresTotal.WithLabelValues(ev.EventType.DetailType()).Inc()
			c.logger.Error("failed to publish lifecycle event",
				zap.String("tenant_id", ev.TenantID),
				zap.String("event_type", string(ev.EventType)),
				zap.Error(err))
		}
		return
	}

	for i, ev := range events {
		if i < len(outcomes) && outcomes[i].Err == nil {
			c.metrics.EventsPublishedTotal.WithLabelValues(ev.EventType.DetailType()).Inc()
			c.logger.Info("published lifecycle event",
				zap.String("tenant_id", ev.TenantID),
				zap.String("event_type", string(ev.EventType)),
				zap.String("bus_event_id", outcomes[i].EventID.String()))
			continue
		}

		var entryErr error
		if i < len(outcomes) {
			entryErr = outcomes[i].Err
		} else {
			entryErr = errors.New("no publish outcome returned")
		}
		c.metrics.PublishFailuresTotal.WithLabelValues(ev.EventType.DetailType()).Inc()
		c.logger.Error("lifecycle event rejected by bus",
			zap.String("tenant_id", ev.TenantID),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(entryErr))
	}
}
