package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/store"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantConflict      = errors.New("tenant with this id already exists")
	ErrNotReprovisionable  = errors.New("tenant is not in a reprovisionable state")
	ErrInvalidTenant       = errors.New("invalid tenant")
	ErrTenantDeleted       = errors.New("tenant is deleted; set status to ACTIVE or SUSPENDED to restore it")
	ErrReprovisionUnqueued = errors.New("reprovision event could not be published")
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,62}$`)

// TenantView is a tenant plus the policy its tier implies.
type TenantView struct {
	Tenant *domain.TenantRecord `json:"tenant"`
	Policy domain.TierPolicy    `json:"policy"`
}

type CreateTenantInput struct {
	ID     string
	Slug   string
	Name   string
	Tier   domain.Tier
	Region string
}

// TenantService is the operator surface over the tenant store. Writes here
// only mutate the record; provisioning follows through the change feed.
type TenantService struct {
	tenants   domain.TenantStore
	publisher domain.EventPublisher
	logger    *zap.Logger

	clock         clock.Clock
	defaultRegion string
}

func NewTenantService(ts domain.TenantStore, pub domain.EventPublisher, cfg *config.Config, logger *zap.Logger) *TenantService {
	return &TenantService{
		tenants:       ts,
		publisher:     pub,
		logger:        logger,
		clock:         clock.New(),
		defaultRegion: cfg.AWSRegion,
	}
}

func (s *TenantService) SetClock(clk clock.Clock) {
	s.clock = clk
}

func (s *TenantService) Create(ctx context.Context, in CreateTenantInput) (*TenantView, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if !tenantIDPattern.MatchString(in.ID) {
		return nil, fmt.Errorf("%w: id must be alphanumeric with dashes, up to 63 characters", ErrInvalidTenant)
	}
	if in.Slug == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidTenant)
	}
	if in.Tier == "" {
		in.Tier = domain.TierFree
	}
	if !domain.ValidTier(string(in.Tier)) {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidTenant, in.Tier)
	}
	if in.Region == "" {
		in.Region = s.defaultRegion
	}

	now := s.clock.Now().UTC()
	policy := domain.PolicyForTier(in.Tier)
	t := &domain.TenantRecord{
		ID:                 in.ID,
		Slug:               in.Slug,
		Name:               in.Name,
		Tier:               in.Tier,
		Status:             domain.TenantStatusActive,
		ProvisioningStatus: domain.ProvisioningPending,
		IsolationModel:     policy.IsolationModel,
		Region:             in.Region,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.tenants.Create(ctx, t); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrTenantConflict
		}
		return nil, err
	}
	return &TenantView{Tenant: t, Policy: policy}, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (*TenantView, error) {
	t, err := s.tenants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &TenantView{Tenant: t, Policy: domain.PolicyForTier(t.Tier)}, nil
}

func (s *TenantService) Update(ctx context.Context, id string, u domain.TenantUpdate) (*TenantView, error) {
	if u.Tier != nil && !domain.ValidTier(string(*u.Tier)) {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidTenant, *u.Tier)
	}
	if u.Status != nil && !domain.ValidTenantStatus(string(*u.Status)) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTenant, *u.Status)
	}

	t, err := s.tenants.Update(ctx, id, u, s.clock.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrTenantNotFound
		case errors.Is(err, store.ErrConditionFailed):
			return nil, ErrTenantDeleted
		}
		return nil, err
	}
	return &TenantView{Tenant: t, Policy: domain.PolicyForTier(t.Tier)}, nil
}

func (s *TenantService) Delete(ctx context.Context, id string) error {
	if err := s.tenants.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTenantNotFound
		}
		return err
	}
	return nil
}

// Reprovision is the manual re-trigger. A FAILED tenant is moved back to
// PROVISIONING; a tenant already PROVISIONING (for example after its onboarding
// event was lost) keeps its status. Either way a fresh Onboarding event is
// published. Any other state is rejected.
func (s *TenantService) Reprovision(ctx context.Context, id string) (*TenantView, error) {
	t, err := s.tenants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	if t.Status == domain.TenantStatusDeleted {
		return nil, ErrNotReprovisionable
	}

	now := s.clock.Now().UTC()
	switch t.ProvisioningStatus {
	case domain.ProvisioningFailed:
		err := s.tenants.TransitionProvisioning(ctx, id, domain.ProvisioningFailed, domain.ProvisioningInProgress, now)
		if err != nil {
			if errors.Is(err, store.ErrConditionFailed) {
				return nil, ErrNotReprovisionable
			}
			return nil, err
		}
		t.ProvisioningStatus = domain.ProvisioningInProgress
		t.ProvisioningError = ""
	case domain.ProvisioningInProgress:
	default:
		return nil, ErrNotReprovisionable
	}

	ev := domain.LifecycleEvent{
		ID:         uuid.New(),
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantTier: t.Tier,
		EventType:  domain.EventOnboarding,
		Timestamp:  now,
		Details:    map[string]string{"trigger": "reprovision"},
	}
	outcomes, err := s.publisher.Publish(ctx, domain.BusEntry{
		DetailType: domain.DetailTenantOnboarding,
		Source:     domain.SourceOperator,
		Detail:     ev,
	})
	if err == nil && len(outcomes) > 0 {
		err = outcomes[0].Err
	}
	if err != nil {
		s.logger.Error("failed to publish reprovision event", zap.String("tenant_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrReprovisionUnqueued, err)
	}

	s.logger.Info("tenant reprovision requested", zap.String("tenant_id", id))
	return &TenantView{Tenant: t, Policy: domain.PolicyForTier(t.Tier)}, nil
}
