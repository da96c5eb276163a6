package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeModify ChangeKind = "MODIFY"
	ChangeRemove ChangeKind = "REMOVE"
)

// ChangeRecord is one committed mutation of a tenant_items row, in feed order.
// Images are the raw item attributes; either may be absent depending on Kind.
type ChangeRecord struct {
	Seq          int64           `json:"seq"`
	Kind         ChangeKind      `json:"kind"`
	PartitionKey string          `json:"pk"`
	SortKey      string          `json:"sk"`
	OldImage     json.RawMessage `json:"old_image,omitempty"`
	NewImage     json.RawMessage `json:"new_image,omitempty"`
	CommittedAt  time.Time       `json:"committed_at"`
}

// DecodeTenantImage unmarshals an item image into a TenantRecord.
// A missing image decodes to nil without error.
func DecodeTenantImage(raw json.RawMessage) (*TenantRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var t TenantRecord
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode tenant image: %w", err)
	}
	return &t, nil
}

type LifecycleEventType string

const (
	EventOnboarding  LifecycleEventType = "Onboarding"
	EventUpdated     LifecycleEventType = "Updated"
	EventOffboarding LifecycleEventType = "Offboarding"
)

// Bus detail types.
const (
	DetailTenantOnboarding  = "TenantOnboarding"
	DetailTenantUpdated     = "TenantUpdated"
	DetailTenantOffboarding = "TenantOffboarding"
	DetailTenantProvisioned = "TenantProvisioned"
)

const (
	SourceClassifier  = "tenantops.classifier"
	SourceProvisioner = "tenantops.provisioner"
	SourceOperator    = "tenantops.operator"
)

func (t LifecycleEventType) DetailType() string {
	switch t {
	case EventOnboarding:
		return DetailTenantOnboarding
	case EventUpdated:
		return DetailTenantUpdated
	case EventOffboarding:
		return DetailTenantOffboarding
	default:
		return ""
	}
}

func LifecycleDetailTypes() []string {
	return []string{DetailTenantOnboarding, DetailTenantUpdated, DetailTenantOffboarding}
}

// LifecycleEvent is published once per actionable change and may be delivered
// more than once.
type LifecycleEvent struct {
	ID           uuid.UUID          `json:"id"`
	TenantID     string             `json:"tenantId"`
	TenantSlug   string             `json:"tenantSlug"`
	TenantTier   Tier               `json:"tenantTier"`
	PreviousTier Tier               `json:"previousTier,omitempty"`
	EventType    LifecycleEventType `json:"eventType"`
	Timestamp    time.Time          `json:"timestamp"`
	Details      map[string]string  `json:"details,omitempty"`
}

// TierChanged reports whether this Updated event carries a tier change.
func (e LifecycleEvent) TierChanged() bool {
	return e.PreviousTier != "" && e.PreviousTier != e.TenantTier
}

type ResultStatus string

const (
	ResultCompleted ResultStatus = "COMPLETED"
	ResultFailed    ResultStatus = "FAILED"
)

type ProvisionedResources struct {
	LogGroupName    string `json:"logGroupName,omitempty"`
	RetentionDays   int    `json:"retentionDays,omitempty"`
	DedicatedBucket string `json:"dedicatedBucket,omitempty"`
}

// ProvisioningResult is the completion event for one lifecycle event.
type ProvisioningResult struct {
	TenantID  string               `json:"tenantId"`
	EventID   uuid.UUID            `json:"eventId"`
	EventType LifecycleEventType   `json:"eventType"`
	Status    ResultStatus         `json:"status"`
	Resources ProvisionedResources `json:"resources"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// TargetStatus maps a result to the provisioningStatus it closes the loop with.
func (r ProvisioningResult) TargetStatus() ProvisioningStatus {
	if r.Status == ResultCompleted {
		return ProvisioningProvisioned
	}
	return ProvisioningFailed
}

// BusEntry is one event handed to the bus for publishing.
type BusEntry struct {
	DetailType string
	Source     string
	Detail     any
}

// PublishOutcome reports the fate of a single entry in a publish batch.
type PublishOutcome struct {
	EventID uuid.UUID
	Err     error
}

// BusEvent is an event as delivered by the bus to a subscriber.
type BusEvent struct {
	ID          uuid.UUID       `json:"id"`
	BusName     string          `json:"bus_name"`
	DetailType  string          `json:"detail_type"`
	Source      string          `json:"source"`
	Detail      json.RawMessage `json:"detail"`
	Attempts    int             `json:"attempts"`
	PublishedAt time.Time       `json:"published_at"`
}

func (e BusEvent) DecodeLifecycle() (LifecycleEvent, error) {
	var ev LifecycleEvent
	if err := json.Unmarshal(e.Detail, &ev); err != nil {
		return ev, fmt.Errorf("decode %s detail: %w", e.DetailType, err)
	}
	return ev, nil
}

func (e BusEvent) DecodeResult() (ProvisioningResult, error) {
	var r ProvisioningResult
	if err := json.Unmarshal(e.Detail, &r); err != nil {
		return r, fmt.Errorf("decode %s detail: %w", e.DetailType, err)
	}
	return r, nil
}
