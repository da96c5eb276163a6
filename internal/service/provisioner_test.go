package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type provisionerFixture struct {
	p       *Provisioner
	logs    *fakeLogs
	buckets *fakeBuckets
	bus     *mockBus
	metrics *metrics.Metrics
}

func newProvisionerFixture(sandbox bool) *provisionerFixture {
	cfg := testConfig()
	cfg.SandboxMode = sandbox
	f := &provisionerFixture{
		logs:    newFakeLogs(),
		buckets: newFakeBuckets(),
		bus:     newMockBus(),
		metrics: metrics.NewMetrics(),
	}
	f.p = NewProvisioner(f.logs, f.buckets, f.bus, cfg, f.metrics, zap.NewNop())
	clk := clock.NewMock()
	clk.Set(testNow)
	f.p.SetClock(clk)
	return f
}

func lifecycleEvent(id string, typ domain.LifecycleEventType, tier domain.Tier) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		ID:         uuid.New(),
		TenantID:   id,
		TenantSlug: id + "-slug",
		TenantTier: tier,
		EventType:  typ,
		Timestamp:  testNow,
	}
}

func TestProvisioner_ResourceNames(t *testing.T) {
	f := newProvisionerFixture(false)
	assert.Equal(t, "/tenantops/tenants/T-42", f.p.LogGroupName("T-42"))
	assert.Equal(t, "tenantops-tenant-t-42", f.p.BucketName("T-42"))
}

func TestProvisioner_OnboardingAppliesTierRetention(t *testing.T) {
	tests := []struct {
		tier       domain.Tier
		retention  int
		wantBucket bool
	}{
		{domain.TierFree, 30, false},
		{domain.TierPro, 90, false},
		{domain.TierEnterprise, 365, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			f := newProvisionerFixture(false)
			result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, tt.tier))

			assert.Equal(t, domain.ResultCompleted, result.Status)
			assert.Equal(t, "t-1", result.TenantID)
			assert.Equal(t, domain.EventOnboarding, result.EventType)
			assert.Equal(t, "/tenantops/tenants/t-1", result.Resources.LogGroupName)
			assert.Equal(t, tt.retention, result.Resources.RetentionDays)
			assert.Equal(t, tt.retention, f.logs.groups["/tenantops/tenants/t-1"])

			if tt.wantBucket {
				assert.Equal(t, "tenantops-tenant-t-1", result.Resources.DedicatedBucket)
				assert.True(t, f.buckets.buckets["tenantops-tenant-t-1"])
			} else {
				assert.Empty(t, result.Resources.DedicatedBucket)
				assert.Empty(t, f.buckets.buckets)
			}
		})
	}
}

func TestProvisioner_UnknownTierFallsBackToFree(t *testing.T) {
	f := newProvisionerFixture(false)
	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, domain.Tier("PLATINUM")))

	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Equal(t, 30, result.Resources.RetentionDays)
}

func TestProvisioner_SandboxSkipsRetention(t *testing.T) {
	f := newProvisionerFixture(true)
	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, domain.TierPro))

	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Zero(t, result.Resources.RetentionDays)
	assert.Empty(t, f.logs.retention)
	assert.Contains(t, f.logs.groups, "/tenantops/tenants/t-1")
}

func TestProvisioner_OnboardingIsIdempotent(t *testing.T) {
	f := newProvisionerFixture(false)
	ev := lifecycleEvent("t-1", domain.EventOnboarding, domain.TierEnterprise)

	first := f.p.Provision(context.Background(), ev)
	second := f.p.Provision(context.Background(), ev)

	assert.Equal(t, domain.ResultCompleted, first.Status)
	assert.Equal(t, domain.ResultCompleted, second.Status)
	assert.Equal(t, first.Resources, second.Resources)
	assert.Equal(t, 1, f.logs.creates)
	assert.Equal(t, 1, f.buckets.creates)
}

func TestProvisioner_TierUpgradeUpdatesRetentionInPlace(t *testing.T) {
	f := newProvisionerFixture(false)
	f.p.Provision(context.Background(), lifecycleEvent("t-2", domain.EventOnboarding, domain.TierFree))

	ev := lifecycleEvent("t-2", domain.EventUpdated, domain.TierEnterprise)
	ev.PreviousTier = domain.TierFree
	result := f.p.Provision(context.Background(), ev)

	require.Equal(t, domain.ResultCompleted, result.Status)
	assert.Equal(t, 365, result.Resources.RetentionDays)
	assert.Equal(t, 365, f.logs.groups["/tenantops/tenants/t-2"])
	assert.Equal(t, 1, f.logs.creates, "log group must not be recreated")
	assert.Equal(t, []int{30, 365}, f.logs.retention)
	assert.Equal(t, "tenantops-tenant-t-2", result.Resources.DedicatedBucket)
}

func TestProvisioner_FailureProducesFailedResult(t *testing.T) {
	f := newProvisionerFixture(false)
	f.logs.retentionErr = errors.New("throttled")

	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, domain.TierPro))

	assert.Equal(t, domain.ResultFailed, result.Status)
	assert.Contains(t, result.Error, "throttled")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProvisioningResultsTotal.WithLabelValues("Onboarding", "FAILED")))
}

func TestProvisioner_OffboardingTearsDown(t *testing.T) {
	f := newProvisionerFixture(false)
	f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, domain.TierEnterprise))

	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOffboarding, domain.TierEnterprise))
	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Empty(t, f.logs.groups)
	assert.Empty(t, f.buckets.buckets)

	// Nothing left to delete is still a success.
	again := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOffboarding, domain.TierEnterprise))
	assert.Equal(t, domain.ResultCompleted, again.Status)
}

func TestProvisioner_OffboardingRemovesBucketLeftByDowngrade(t *testing.T) {
	f := newProvisionerFixture(false)
	f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOnboarding, domain.TierEnterprise))

	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOffboarding, domain.TierFree))
	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Empty(t, f.buckets.buckets)
}

func TestProvisioner_OffboardingCollectsErrors(t *testing.T) {
	f := newProvisionerFixture(false)
	f.logs.deleteErr = errors.New("logs down")
	f.buckets.deleteErr = errors.New("s3 down")

	result := f.p.Provision(context.Background(), lifecycleEvent("t-1", domain.EventOffboarding, domain.TierFree))
	assert.Equal(t, domain.ResultFailed, result.Status)
	assert.Contains(t, result.Error, "logs down")
	assert.Contains(t, result.Error, "s3 down")
}

func TestProvisioner_HandlePublishesExactlyOneResult(t *testing.T) {
	f := newProvisionerFixture(false)
	ev := lifecycleEvent("t-1", domain.EventOnboarding, domain.TierPro)
	detail, err := json.Marshal(ev)
	require.NoError(t, err)

	err = f.p.Handle(context.Background(), domain.BusEvent{ID: uuid.New(), DetailType: domain.DetailTenantOnboarding, Detail: detail})
	require.NoError(t, err)

	published := f.bus.published(domain.DetailTenantProvisioned)
	require.Len(t, published, 1)
	assert.Equal(t, domain.SourceProvisioner, published[0].Source)

	result, err := published[0].DecodeResult()
	require.NoError(t, err)
	assert.Equal(t, ev.ID, result.EventID)
	assert.Equal(t, domain.ResultCompleted, result.Status)
	assert.Equal(t, 90, result.Resources.RetentionDays)
}

func TestProvisioner_HandlePublishesFailedResult(t *testing.T) {
	f := newProvisionerFixture(false)
	f.logs.ensureErr = errors.New("access denied")
	detail, _ := json.Marshal(lifecycleEvent("t-1", domain.EventOnboarding, domain.TierPro))

	err := f.p.Handle(context.Background(), domain.BusEvent{ID: uuid.New(), DetailType: domain.DetailTenantOnboarding, Detail: detail})
	require.NoError(t, err)

	published := f.bus.published(domain.DetailTenantProvisioned)
	require.Len(t, published, 1)
	result, err := published[0].DecodeResult()
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, result.Status)
	assert.Contains(t, result.Error, "access denied")
}

func TestProvisioner_HandleReturnsPublishError(t *testing.T) {
	f := newProvisionerFixture(false)
	f.bus.rejectType[domain.DetailTenantProvisioned] = true
	detail, _ := json.Marshal(lifecycleEvent("t-1", domain.EventOnboarding, domain.TierFree))

	err := f.p.Handle(context.Background(), domain.BusEvent{ID: uuid.New(), DetailType: domain.DetailTenantOnboarding, Detail: detail})
	assert.Error(t, err)
}

func TestProvisioner_HandleRejectsBadDetail(t *testing.T) {
	f := newProvisionerFixture(false)
	err := f.p.Handle(context.Background(), domain.BusEvent{ID: uuid.New(), DetailType: domain.DetailTenantOnboarding, Detail: json.RawMessage(`[`)})
	assert.Error(t, err)
	assert.Empty(t, f.bus.published(domain.DetailTenantProvisioned))
}
