package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantStore owns tenant metadata items. Every write is a single-item update
// keyed by tenant id; the provisioning writes are conditional on the current
// provisioningStatus and report store.ErrConditionFailed when it does not match.
type TenantStore interface {
	Create(ctx context.Context, t *TenantRecord) error
	Get(ctx context.Context, id string) (*TenantRecord, error)
	Update(ctx context.Context, id string, u TenantUpdate, now time.Time) (*TenantRecord, error)
	Delete(ctx context.Context, id string) error

	TransitionProvisioning(ctx context.Context, id string, from, to ProvisioningStatus, now time.Time) error
	CompleteProvisioning(ctx context.Context, id string, outcome ProvisioningOutcome) error
	RefreshResources(ctx context.Context, id string, res ProvisionedResources, now time.Time) error
	// ReleaseResources drops the resource pointers of a tenant that is still
	// stored with status DELETED.
	ReleaseResources(ctx context.Context, id string, now time.Time) error
}

// ChangeFeed is the ordered, at-least-once mutation log of the tenant store.
type ChangeFeed interface {
	ReadBatch(ctx context.Context, consumer string, limit int) ([]ChangeRecord, error)
	Checkpoint(ctx context.Context, consumer string, seq int64) error
}

// EventPublisher publishes a batch of entries. The returned outcomes line up with
// entries; an error is returned only when the batch could not be attempted.
type EventPublisher interface {
	Publish(ctx context.Context, entries ...BusEntry) ([]PublishOutcome, error)
}

// EventBus is the delivery side of the durable bus.
type EventBus interface {
	EventPublisher
	Claim(ctx context.Context, detailTypes []string, limit int, lease time.Duration) ([]BusEvent, error)
	Ack(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, delay time.Duration, lastErr string) error
	DeadLetter(ctx context.Context, id uuid.UUID, lastErr string) error
}

// ResourceOutcome is what a resource-management call did. Failures other than
// "already exists" and "not found" come back as errors instead.
type ResourceOutcome string

const (
	OutcomeCreated        ResourceOutcome = "created"
	OutcomeAlreadyExisted ResourceOutcome = "already_existed"
	OutcomeDeleted        ResourceOutcome = "deleted"
	OutcomeNotFound       ResourceOutcome = "not_found"
)

type LogRetentionManager interface {
	EnsureLogGroup(ctx context.Context, name string, tags map[string]string) (ResourceOutcome, error)
	PutRetention(ctx context.Context, name string, days int) error
	DeleteLogGroup(ctx context.Context, name string) (ResourceOutcome, error)
}

type BucketManager interface {
	EnsureBucket(ctx context.Context, name string, tags map[string]string) (ResourceOutcome, error)
	DeleteBucket(ctx context.Context, name string) (ResourceOutcome, error)
}
