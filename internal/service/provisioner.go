package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Provisioner applies tier policy to a tenant's cloud resources.
type Provisioner struct {
	logs      domain.LogRetentionManager
	buckets   domain.BucketManager
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	clock          clock.Clock
	resourcePrefix string
	sandboxMode    bool
	callTimeout    time.Duration
}

func NewProvisioner(logs domain.LogRetentionManager, buckets domain.BucketManager, pub domain.EventPublisher, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		logs:           logs,
		buckets:        buckets,
		publisher:      pub,
		metrics:        m,
		logger:         logger,
		clock:          clock.New(),
		resourcePrefix: cfg.ResourcePrefix,
		sandboxMode:    cfg.SandboxMode,
		callTimeout:    cfg.CallTimeout,
	}
}

func (p *Provisioner) SetClock(clk clock.Clock) {
	p.clock = clk
}

// LogGroupName is the tenant's log group.
func (p *Provisioner) LogGroupName(tenantID string) string {
	return fmt.Sprintf("/%s/tenants/%s", p.resourcePrefix, tenantID)
}

// BucketName is the tenant's dedicated bucket. Bucket names are lowercase.
func (p *Provisioner) BucketName(tenantID string) string {
	return strings.ToLower(fmt.Sprintf("%s-tenant-%s", p.resourcePrefix, tenantID))
}

// Provision executes the resource actions for one lifecycle event. It never
// fails: every error is folded into a FAILED result so the pipeline always
// produces a completion event.
func (p *Provisioner) Provision(ctx context.Context, ev domain.LifecycleEvent) domain.ProvisioningResult {
	start := p.clock.Now()
	policy := domain.PolicyForTier(ev.TenantTier)

	var (
		res domain.ProvisionedResources
		err error
	)
	switch ev.EventType {
	case domain.EventOnboarding, domain.EventUpdated:
		res, err = p.ensure(ctx, ev, policy)
	case domain.EventOffboarding:
		res, err = p.teardown(ctx, ev, policy)
	default:
		err = fmt.Errorf("unknown lifecycle event type %q", ev.EventType)
	}

	result := domain.ProvisioningResult{
		TenantID:  ev.TenantID,
		EventID:   ev.ID,
		EventType: ev.EventType,
		Status:    domain.ResultCompleted,
		Resources: res,
		Timestamp: p.clock.Now().UTC(),
	}
	if err != nil {
		result.Status = domain.ResultFailed
		result.Error = err.Error()
		p.logger.Error("provisioning failed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("event_type", string(ev.EventType)),
			zap.Error(err))
	} else {
		p.logger.Info("provisioning completed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("event_type", string(ev.EventType)),
			zap.String("tier", string(policy.Tier)),
			zap.Int("retention_days", res.RetentionDays))
	}

	p.metrics.ProvisioningResultsTotal.WithLabelValues(string(ev.EventType), string(result.Status)).Inc()
	p.metrics.ProvisioningDuration.WithLabelValues(string(ev.EventType)).Observe(p.clock.Since(start).Seconds())
	return result
}

func (p *Provisioner) ensure(ctx context.Context, ev domain.LifecycleEvent, policy domain.TierPolicy) (domain.ProvisionedResources, error) {
	name := p.LogGroupName(ev.TenantID)
	res := domain.ProvisionedResources{LogGroupName: name}
	tags := map[string]string{
		"tenant": ev.TenantID,
		"tier":   string(policy.Tier),
	}

	outcome, err := callWithTimeout(ctx, p.callTimeout, func(ctx context.Context) (domain.ResourceOutcome, error) {
		return p.logs.EnsureLogGroup(ctx, name, tags)
	})
	if err != nil {
		return res, err
	}
	p.logger.Debug("log group ensured",
		zap.String("tenant_id", ev.TenantID),
		zap.String("log_group", name),
		zap.String("outcome", string(outcome)))

	if p.sandboxMode {
		p.logger.Debug("sandbox mode, skipping retention policy", zap.String("tenant_id", ev.TenantID))
	} else {
		_, err := callWithTimeout(ctx, p.callTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.logs.PutRetention(ctx, name, policy.RetentionDays)
		})
		if err != nil {
			return res, err
		}
		res.RetentionDays = policy.RetentionDays
		if ev.TierChanged() {
			p.logger.Info("retention updated for tier change",
				zap.String("tenant_id", ev.TenantID),
				zap.String("from_tier", string(ev.PreviousTier)),
				zap.String("to_tier", string(ev.TenantTier)),
				zap.Int("retention_days", policy.RetentionDays))
		}
	}

	if policy.IsolationModel == domain.IsolationDedicated {
		bucket := p.BucketName(ev.TenantID)
		outcome, err := callWithTimeout(ctx, p.callTimeout, func(ctx context.Context) (domain.ResourceOutcome, error) {
			return p.buckets.EnsureBucket(ctx, bucket, tags)
		})
		if err != nil {
			return res, err
		}
		res.DedicatedBucket = bucket
		p.logger.Debug("dedicated bucket ensured",
			zap.String("tenant_id", ev.TenantID),
			zap.String("bucket", bucket),
			zap.String("outcome", string(outcome)))
	}

	return res, nil
}

// teardown deletes every resource the tenant may own. A downgrade may have left
// a dedicated bucket behind, so the bucket is removed whatever the last tier was.
func (p *Provisioner) teardown(ctx context.Context, ev domain.LifecycleEvent, policy domain.TierPolicy) (domain.ProvisionedResources, error) {
	name := p.LogGroupName(ev.TenantID)
	bucket := p.BucketName(ev.TenantID)
	var errs error

	outcome, err := callWithTimeout(ctx, p.callTimeout, func(ctx context.Context) (domain.ResourceOutcome, error) {
		return p.logs.DeleteLogGroup(ctx, name)
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		p.logger.Debug("log group removed", zap.String("tenant_id", ev.TenantID), zap.String("outcome", string(outcome)))
	}

	outcome, err = callWithTimeout(ctx, p.callTimeout, func(ctx context.Context) (domain.ResourceOutcome, error) {
		return p.buckets.DeleteBucket(ctx, bucket)
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		p.logger.Debug("dedicated bucket removed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("isolation", string(policy.IsolationModel)),
			zap.String("outcome", string(outcome)))
	}

	return domain.ProvisionedResources{}, errs
}

// Handle is the bus adapter: provision, then publish exactly one
// TenantProvisioned event. Only a publish failure is returned, so the bus
// redelivers the lifecycle event and the idempotent run repeats.
func (p *Provisioner) Handle(ctx context.Context, ev domain.BusEvent) error {
	lifecycle, err := ev.DecodeLifecycle()
	if err != nil {
		return err
	}

	result := p.Provision(ctx, lifecycle)

	pubCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	outcomes, err := p.publisher.Publish(pubCtx, domain.BusEntry{
		DetailType: domain.DetailTenantProvisioned,
		Source:     domain.SourceProvisioner,
		Detail:     result,
	})
	if err == nil && len(outcomes) == 1 {
		err = outcomes[0].Err
	} else if err == nil {
		err = fmt.Errorf("expected 1 publish outcome, got %d", len(outcomes))
	}
	if err != nil {
		p.metrics.PublishFailuresTotal.WithLabelValues(domain.DetailTenantProvisioned).Inc()
		return fmt.Errorf("publish provisioning result for %s: %w", lifecycle.TenantID, err)
	}
	p.metrics.EventsPublishedTotal.WithLabelValues(domain.DetailTenantProvisioned).Inc()
	return nil
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
