package domain

import (
	"strings"
	"time"
)

const (
	TenantPartitionPrefix = "TENANT#"
	TenantMetadataSortKey = "METADATA"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusDeleted   TenantStatus = "DELETED"
)

func ValidTenantStatus(s string) bool {
	switch TenantStatus(s) {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusDeleted:
		return true
	}
	return false
}

type ProvisioningStatus string

const (
	ProvisioningPending     ProvisioningStatus = "PENDING"
	ProvisioningInProgress  ProvisioningStatus = "PROVISIONING"
	ProvisioningProvisioned ProvisioningStatus = "PROVISIONED"
	ProvisioningFailed      ProvisioningStatus = "FAILED"
)

// provisioningTransitions lists every allowed provisioningStatus move.
// FAILED -> PROVISIONING is the manual retry path.
var provisioningTransitions = map[ProvisioningStatus][]ProvisioningStatus{
	ProvisioningPending:    {ProvisioningInProgress},
	ProvisioningInProgress: {ProvisioningProvisioned, ProvisioningFailed},
	ProvisioningFailed:     {ProvisioningInProgress},
}

// CanTransition reports whether provisioningStatus may move from one state to another.
func CanTransition(from, to ProvisioningStatus) bool {
	for _, next := range provisioningTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type IsolationModel string

const (
	IsolationPooled    IsolationModel = "POOLED"
	IsolationDedicated IsolationModel = "DEDICATED"
)

// TenantRecord is the tenant metadata item. Its JSON form is the item image
// stored in tenant_items.attrs and carried on change records.
type TenantRecord struct {
	ID                 string             `json:"id"`
	Slug               string             `json:"slug"`
	Name               string             `json:"name"`
	Tier               Tier               `json:"tier"`
	Status             TenantStatus       `json:"status"`
	ProvisioningStatus ProvisioningStatus `json:"provisioningStatus"`
	IsolationModel     IsolationModel     `json:"isolationModel"`
	Region             string             `json:"region,omitempty"`

	LogGroupName      string     `json:"logGroupName,omitempty"`
	RetentionDays     int        `json:"retentionDays,omitempty"`
	DedicatedBucket   string     `json:"dedicatedBucket,omitempty"`
	ProvisioningError string     `json:"provisioningError,omitempty"`
	ProvisionedAt     *time.Time `json:"provisionedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func TenantPartitionKey(id string) string {
	return TenantPartitionPrefix + id
}

// TenantIDFromKey returns the tenant id for a tenant metadata item key,
// or false when the key belongs to any other item.
func TenantIDFromKey(pk, sk string) (string, bool) {
	if sk != TenantMetadataSortKey || !strings.HasPrefix(pk, TenantPartitionPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(pk, TenantPartitionPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}

// TenantUpdate holds the operator-editable fields of a tenant.
type TenantUpdate struct {
	Tier   *Tier         `json:"tier,omitempty"`
	Status *TenantStatus `json:"status,omitempty"`
	Name   *string       `json:"name,omitempty"`
}

// AppliesTo reports whether u may be written to t. A DELETED tenant only
// accepts edits that also move it back to ACTIVE or SUSPENDED.
func (u TenantUpdate) AppliesTo(t *TenantRecord) bool {
	if t.Status != TenantStatusDeleted {
		return true
	}
	return u.Status != nil && *u.Status != TenantStatusDeleted
}

// ProvisioningOutcome is written by the reconciler together with a status move.
type ProvisioningOutcome struct {
	Status        ProvisioningStatus
	Resources     ProvisionedResources
	Error         string
	ProvisionedAt *time.Time
	UpdatedAt     time.Time
}
