package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/Harshitk-cp/tenantops/internal/store"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Reconciler closes the provisioning loop by writing the result back to the
// tenant record.
type Reconciler struct {
	tenants domain.TenantStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	clock       clock.Clock
	callTimeout time.Duration
}

func NewReconciler(ts domain.TenantStore, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		tenants:     ts,
		metrics:     m,
		logger:      logger,
		clock:       clock.New(),
		callTimeout: cfg.CallTimeout,
	}
}

func (r *Reconciler) SetClock(clk clock.Clock) {
	r.clock = clk
}

// Reconcile applies a result with a single conditional update that requires the
// tenant to exist and be PROVISIONING. When the condition does not hold (tenant
// deleted, duplicate delivery, out-of-order result) nothing is written and nil
// is returned. Any other store error is returned for redelivery.
func (r *Reconciler) Reconcile(ctx context.Context, result domain.ProvisioningResult) error {
	now := r.clock.Now().UTC()
	outcome := domain.ProvisioningOutcome{
		Status:    result.TargetStatus(),
		Resources: result.Resources,
		UpdatedAt: now,
	}
	if outcome.Status == domain.ProvisioningProvisioned {
		outcome.ProvisionedAt = &now
	} else {
		outcome.Error = result.Error
		if outcome.Error == "" {
			outcome.Error = "provisioning failed"
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	err := r.tenants.CompleteProvisioning(ctx, result.TenantID, outcome)
	switch {
	case err == nil:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("applied").Inc()
		r.logger.Info("provisioning status reconciled",
			zap.String("tenant_id", result.TenantID),
			zap.String("event_type", string(result.EventType)),
			zap.String("provisioning_status", string(outcome.Status)))
		if result.EventType == domain.EventOffboarding && result.Status == domain.ResultCompleted {
			return r.release(ctx, result, now)
		}
		return nil

	case errors.Is(err, store.ErrConditionFailed):
		if result.Status == domain.ResultCompleted {
			switch result.EventType {
			case domain.EventUpdated:
				return r.refresh(ctx, result, now)
			case domain.EventOffboarding:
				return r.release(ctx, result, now)
			}
		}
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("skipped").Inc()
		r.logger.Debug("tenant not provisioning, skipping result",
			zap.String("tenant_id", result.TenantID),
			zap.String("event_type", string(result.EventType)),
			zap.String("status", string(result.Status)))
		return nil

	default:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("reconcile tenant %s: %w", result.TenantID, err)
	}
}

// refresh records new resource pointers (for example retention after a tier
// change) on a tenant that is already PROVISIONED. It does not move the status.
func (r *Reconciler) refresh(ctx context.Context, result domain.ProvisioningResult, now time.Time) error {
	err := r.tenants.RefreshResources(ctx, result.TenantID, result.Resources, now)
	switch {
	case err == nil:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("refreshed").Inc()
		r.logger.Info("resource pointers refreshed",
			zap.String("tenant_id", result.TenantID),
			zap.Int("retention_days", result.Resources.RetentionDays))
		return nil
	case errors.Is(err, store.ErrConditionFailed):
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("skipped").Inc()
		return nil
	default:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh resources for tenant %s: %w", result.TenantID, err)
	}
}

// release clears the resource pointers of a DELETED tenant after teardown, so
// the record stops naming a log group or bucket that no longer exists. A
// tenant removed outright, or restored in the meantime, is left alone.
func (r *Reconciler) release(ctx context.Context, result domain.ProvisioningResult, now time.Time) error {
	err := r.tenants.ReleaseResources(ctx, result.TenantID, now)
	switch {
	case err == nil:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("released").Inc()
		r.logger.Info("resource pointers released", zap.String("tenant_id", result.TenantID))
		return nil
	case errors.Is(err, store.ErrConditionFailed):
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("skipped").Inc()
		return nil
	default:
		r.metrics.ReconcileOutcomesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("release resources for tenant %s: %w", result.TenantID, err)
	}
}

// Handle is the bus adapter for TenantProvisioned events.
func (r *Reconciler) Handle(ctx context.Context, ev domain.BusEvent) error {
	result, err := ev.DecodeResult()
	if err != nil {
		return err
	}
	return r.Reconcile(ctx, result)
}
