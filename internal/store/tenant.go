package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Create(ctx context.Context, t *domain.TenantRecord) error {
	attrs, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tenant: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO tenant_items (pk, sk, attrs, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $4)`,
		domain.TenantPartitionKey(t.ID), domain.TenantMetadataSortKey, string(attrs), t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (*domain.TenantRecord, error) {
	var attrs []byte
	err := s.db.QueryRow(ctx,
		`SELECT attrs FROM tenant_items WHERE pk = $1 AND sk = $2`,
		domain.TenantPartitionKey(id), domain.TenantMetadataSortKey,
	).Scan(&attrs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return domain.DecodeTenantImage(attrs)
}

// Update applies operator edits under a row lock. Changing the tier also moves
// the isolation model to the one the new tier's policy prescribes. Edits to a
// DELETED tenant that do not restore it fail with ErrConditionFailed.
func (s *TenantStore) Update(ctx context.Context, id string, u domain.TenantUpdate, now time.Time) (*domain.TenantRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tenant update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pk := domain.TenantPartitionKey(id)

	var attrs []byte
	err = tx.QueryRow(ctx,
		`SELECT attrs FROM tenant_items WHERE pk = $1 AND sk = $2 FOR UPDATE`,
		pk, domain.TenantMetadataSortKey,
	).Scan(&attrs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t, err := domain.DecodeTenantImage(attrs)
	if err != nil {
		return nil, err
	}
	if !u.AppliesTo(t) {
		return nil, ErrConditionFailed
	}
	applyTenantUpdate(t, u, now)

	updated, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal tenant: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tenant_items SET attrs = $3::jsonb, updated_at = $4 WHERE pk = $1 AND sk = $2`,
		pk, domain.TenantMetadataSortKey, string(updated), now,
	); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tenant update: %w", err)
	}
	return t, nil
}

func applyTenantUpdate(t *domain.TenantRecord, u domain.TenantUpdate, now time.Time) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Tier != nil {
		t.Tier = *u.Tier
		t.IsolationModel = domain.PolicyForTier(*u.Tier).IsolationModel
	}
	t.UpdatedAt = now
}

func (s *TenantStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM tenant_items WHERE pk = $1 AND sk = $2`,
		domain.TenantPartitionKey(id), domain.TenantMetadataSortKey,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionProvisioning moves provisioningStatus from -> to only if the item
// exists and is currently in from. Entering PROVISIONING clears any previous error.
func (s *TenantStore) TransitionProvisioning(ctx context.Context, id string, from, to domain.ProvisioningStatus, now time.Time) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("invalid provisioning transition %s -> %s", from, to)
	}

	patch := map[string]any{
		"provisioningStatus": to,
		"updatedAt":          now,
	}
	var remove []string
	if to == domain.ProvisioningInProgress {
		remove = append(remove, "provisioningError")
	}
	return s.conditionalPatch(ctx, id, from, patch, remove, now)
}

// CompleteProvisioning closes a provisioning run. The write only happens while
// the tenant is PROVISIONING.
func (s *TenantStore) CompleteProvisioning(ctx context.Context, id string, outcome domain.ProvisioningOutcome) error {
	if !domain.CanTransition(domain.ProvisioningInProgress, outcome.Status) {
		return fmt.Errorf("invalid provisioning outcome %s", outcome.Status)
	}

	patch := resourcePatch(outcome.Resources)
	patch["provisioningStatus"] = outcome.Status
	patch["updatedAt"] = outcome.UpdatedAt

	var remove []string
	if outcome.Status == domain.ProvisioningProvisioned {
		remove = append(remove, "provisioningError")
		if outcome.ProvisionedAt != nil {
			patch["provisionedAt"] = *outcome.ProvisionedAt
		}
	} else {
		patch["provisioningError"] = outcome.Error
	}
	return s.conditionalPatch(ctx, id, domain.ProvisioningInProgress, patch, remove, outcome.UpdatedAt)
}

// RefreshResources updates resource pointers of an already PROVISIONED tenant
// without touching its status.
func (s *TenantStore) RefreshResources(ctx context.Context, id string, res domain.ProvisionedResources, now time.Time) error {
	patch := resourcePatch(res)
	patch["updatedAt"] = now
	return s.conditionalPatch(ctx, id, domain.ProvisioningProvisioned, patch, nil, now)
}

// ReleaseResources removes the resource pointers once teardown has run. It only
// writes while the tenant is stored with status DELETED.
func (s *TenantStore) ReleaseResources(ctx context.Context, id string, now time.Time) error {
	patch := map[string]any{"updatedAt": now}
	remove := []string{"logGroupName", "retentionDays", "dedicatedBucket"}
	return s.patchIf(ctx, id, "status", string(domain.TenantStatusDeleted), patch, remove, now)
}

func resourcePatch(res domain.ProvisionedResources) map[string]any {
	patch := make(map[string]any)
	if res.LogGroupName != "" {
		patch["logGroupName"] = res.LogGroupName
	}
	if res.RetentionDays > 0 {
		patch["retentionDays"] = res.RetentionDays
	}
	if res.DedicatedBucket != "" {
		patch["dedicatedBucket"] = res.DedicatedBucket
	}
	return patch
}

func (s *TenantStore) conditionalPatch(ctx context.Context, id string, expected domain.ProvisioningStatus, patch map[string]any, remove []string, now time.Time) error {
	return s.patchIf(ctx, id, "provisioningStatus", string(expected), patch, remove, now)
}

// patchIf merges patch into the item and drops the remove keys, only when the
// item exists and attrs[field] equals expected.
func (s *TenantStore) patchIf(ctx context.Context, id, field, expected string, patch map[string]any, remove []string, now time.Time) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal tenant patch: %w", err)
	}
	if remove == nil {
		remove = []string{}
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE tenant_items
		 SET attrs = (attrs - $5::text[]) || $6::jsonb, updated_at = $7
		 WHERE pk = $1 AND sk = $2 AND attrs->>$3::text = $4`,
		domain.TenantPartitionKey(id), domain.TenantMetadataSortKey, field, expected, remove, string(body), now,
	)
	if err != nil {
		return fmt.Errorf("conditional tenant update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConditionFailed
	}
	return nil
}
