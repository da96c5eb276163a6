package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/store"
	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		ResourcePrefix:       "tenantops",
		EventBusName:         "tenant-lifecycle",
		FeedConsumer:         "classifier",
		FeedBatchSize:        10,
		BusBatchSize:         10,
		BusVisibilityTimeout: 30 * time.Second,
		BusMaxAttempts:       3,
		CallTimeout:          5 * time.Second,
		HandlerTimeout:       10 * time.Second,
		AWSRegion:            "us-east-1",
	}
}

// mockTenantStore implements domain.TenantStore in memory and records every
// write as a change record, the way the table trigger does.
type mockTenantStore struct {
	mu      sync.Mutex
	tenants map[string]*domain.TenantRecord
	changes []domain.ChangeRecord

	getErr        error
	transitionErr error
	completeErr   error
}

func newMockTenantStore() *mockTenantStore {
	return &mockTenantStore{tenants: make(map[string]*domain.TenantRecord)}
}

func cloneTenant(t *domain.TenantRecord) *domain.TenantRecord {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (m *mockTenantStore) record(kind domain.ChangeKind, id string, oldT, newT *domain.TenantRecord) {
	rec := domain.ChangeRecord{
		Seq:          int64(len(m.changes) + 1),
		Kind:         kind,
		PartitionKey: domain.TenantPartitionKey(id),
		SortKey:      domain.TenantMetadataSortKey,
		CommittedAt:  testNow,
	}
	if oldT != nil {
		rec.OldImage, _ = json.Marshal(oldT)
	}
	if newT != nil {
		rec.NewImage, _ = json.Marshal(newT)
	}
	m.changes = append(m.changes, rec)
}

func (m *mockTenantStore) put(t *domain.TenantRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = cloneTenant(t)
}

func (m *mockTenantStore) snapshot(id string) *domain.TenantRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTenant(m.tenants[id])
}

func (m *mockTenantStore) Create(ctx context.Context, t *domain.TenantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; ok {
		return store.ErrConflict
	}
	m.tenants[t.ID] = cloneTenant(t)
	m.record(domain.ChangeInsert, t.ID, nil, t)
	return nil
}

func (m *mockTenantStore) Get(ctx context.Context, id string) (*domain.TenantRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTenant(t), nil
}

func (m *mockTenantStore) Update(ctx context.Context, id string, u domain.TenantUpdate, now time.Time) (*domain.TenantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !u.AppliesTo(t) {
		return nil, store.ErrConditionFailed
	}
	old := cloneTenant(t)
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
	m.record(domain.ChangeModify, id, old, t)
	return cloneTenant(t), nil
}

func (m *mockTenantStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.tenants, id)
	m.record(domain.ChangeRemove, id, t, nil)
	return nil
}

func (m *mockTenantStore) TransitionProvisioning(ctx context.Context, id string, from, to domain.ProvisioningStatus, now time.Time) error {
	if m.transitionErr != nil {
		return m.transitionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok || t.ProvisioningStatus != from {
		return store.ErrConditionFailed
	}
	old := cloneTenant(t)
	t.ProvisioningStatus = to
	if to == domain.ProvisioningInProgress {
		t.ProvisioningError = ""
	}
	t.UpdatedAt = now
	m.record(domain.ChangeModify, id, old, t)
	return nil
}

func (m *mockTenantStore) CompleteProvisioning(ctx context.Context, id string, outcome domain.ProvisioningOutcome) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok || t.ProvisioningStatus != domain.ProvisioningInProgress {
		return store.ErrConditionFailed
	}
	old := cloneTenant(t)
	applyResources(t, outcome.Resources)
	t.ProvisioningStatus = outcome.Status
	t.UpdatedAt = outcome.UpdatedAt
	if outcome.Status == domain.ProvisioningProvisioned {
		t.ProvisioningError = ""
		t.ProvisionedAt = outcome.ProvisionedAt
	} else {
		t.ProvisioningError = outcome.Error
	}
	m.record(domain.ChangeModify, id, old, t)
	return nil
}

func (m *mockTenantStore) RefreshResources(ctx context.Context, id string, res domain.ProvisionedResources, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok || t.ProvisioningStatus != domain.ProvisioningProvisioned {
		return store.ErrConditionFailed
	}
	old := cloneTenant(t)
	applyResources(t, res)
	t.UpdatedAt = now
	m.record(domain.ChangeModify, id, old, t)
	return nil
}

func (m *mockTenantStore) ReleaseResources(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok || t.Status != domain.TenantStatusDeleted {
		return store.ErrConditionFailed
	}
	old := cloneTenant(t)
	t.LogGroupName = ""
	t.RetentionDays = 0
	t.DedicatedBucket = ""
	t.UpdatedAt = now
	m.record(domain.ChangeModify, id, old, t)
	return nil
}

func applyResources(t *domain.TenantRecord, res domain.ProvisionedResources) {
	if res.LogGroupName != "" {
		t.LogGroupName = res.LogGroupName
	}
	if res.RetentionDays > 0 {
		t.RetentionDays = res.RetentionDays
	}
	if res.DedicatedBucket != "" {
		t.DedicatedBucket = res.DedicatedBucket
	}
}

// mockFeed serves the change log of a mockTenantStore.
type mockFeed struct {
	store       *mockTenantStore
	checkpoints map[string]int64
	readErr     error
}

func newMockFeed(s *mockTenantStore) *mockFeed {
	return &mockFeed{store: s, checkpoints: make(map[string]int64)}
}

func (f *mockFeed) ReadBatch(ctx context.Context, consumer string, limit int) ([]domain.ChangeRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.ChangeRecord
	for _, rec := range f.store.changes {
		if rec.Seq <= f.checkpoints[consumer] {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *mockFeed) Checkpoint(ctx context.Context, consumer string, seq int64) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if seq > f.checkpoints[consumer] {
		f.checkpoints[consumer] = seq
	}
	return nil
}

type busState int

const (
	busPending busState = iota
	busAcked
	busDead
)

type busItem struct {
	event   domain.BusEvent
	state   busState
	lastErr string
}

// mockBus implements domain.EventBus in memory. Leases and retry delays are
// ignored: a claimed event stays invisible until it is acked, retried or
// dead-lettered.
type mockBus struct {
	mu      sync.Mutex
	items   []*busItem
	claimed map[uuid.UUID]bool

	publishErr error
	rejectType map[string]bool
	ackErr     error
}

func newMockBus() *mockBus {
	return &mockBus{claimed: make(map[uuid.UUID]bool), rejectType: make(map[string]bool)}
}

func (b *mockBus) Publish(ctx context.Context, entries ...domain.BusEntry) ([]domain.PublishOutcome, error) {
	if b.publishErr != nil {
		return nil, b.publishErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	outcomes := make([]domain.PublishOutcome, len(entries))
	for i, e := range entries {
		if b.rejectType[e.DetailType] {
			outcomes[i].Err = errors.New("entry rejected")
			continue
		}
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		id := uuid.New()
		b.items = append(b.items, &busItem{event: domain.BusEvent{
			ID:          id,
			BusName:     "tenant-lifecycle",
			DetailType:  e.DetailType,
			Source:      e.Source,
			Detail:      detail,
			PublishedAt: testNow,
		}})
		outcomes[i].EventID = id
	}
	return outcomes, nil
}

func (b *mockBus) Claim(ctx context.Context, detailTypes []string, limit int, lease time.Duration) ([]domain.BusEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BusEvent
	for _, it := range b.items {
		if it.state != busPending || b.claimed[it.event.ID] || !containsString(detailTypes, it.event.DetailType) {
			continue
		}
		it.event.Attempts++
		b.claimed[it.event.ID] = true
		out = append(out, it.event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *mockBus) find(id uuid.UUID) *busItem {
	for _, it := range b.items {
		if it.event.ID == id {
			return it
		}
	}
	return nil
}

func (b *mockBus) Ack(ctx context.Context, id uuid.UUID) error {
	if b.ackErr != nil {
		return b.ackErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if it := b.find(id); it != nil {
		it.state = busAcked
		delete(b.claimed, id)
	}
	return nil
}

func (b *mockBus) Retry(ctx context.Context, id uuid.UUID, delay time.Duration, lastErr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if it := b.find(id); it != nil {
		it.lastErr = lastErr
		delete(b.claimed, id)
	}
	return nil
}

func (b *mockBus) DeadLetter(ctx context.Context, id uuid.UUID, lastErr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if it := b.find(id); it != nil {
		it.state = busDead
		it.lastErr = lastErr
		delete(b.claimed, id)
	}
	return nil
}

func (b *mockBus) published(detailType string) []domain.BusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BusEvent
	for _, it := range b.items {
		if it.event.DetailType == detailType {
			out = append(out, it.event)
		}
	}
	return out
}

func (b *mockBus) countState(s busState) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, it := range b.items {
		if it.state == s {
			n++
		}
	}
	return n
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fakeLogs implements domain.LogRetentionManager.
type fakeLogs struct {
	mu        sync.Mutex
	groups    map[string]int
	creates   int
	retention []int

	ensureErr    error
	retentionErr error
	deleteErr    error
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{groups: make(map[string]int)}
}

func (f *fakeLogs) EnsureLogGroup(ctx context.Context, name string, tags map[string]string) (domain.ResourceOutcome, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; ok {
		return domain.OutcomeAlreadyExisted, nil
	}
	f.groups[name] = 0
	f.creates++
	return domain.OutcomeCreated, nil
}

func (f *fakeLogs) PutRetention(ctx context.Context, name string, days int) error {
	if f.retentionErr != nil {
		return f.retentionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[name] = days
	f.retention = append(f.retention, days)
	return nil
}

func (f *fakeLogs) DeleteLogGroup(ctx context.Context, name string) (domain.ResourceOutcome, error) {
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; !ok {
		return domain.OutcomeNotFound, nil
	}
	delete(f.groups, name)
	return domain.OutcomeDeleted, nil
}

// fakeBuckets implements domain.BucketManager.
type fakeBuckets struct {
	mu      sync.Mutex
	buckets map[string]bool
	creates int

	ensureErr error
	deleteErr error
}

func newFakeBuckets() *fakeBuckets {
	return &fakeBuckets{buckets: make(map[string]bool)}
}

func (f *fakeBuckets) EnsureBucket(ctx context.Context, name string, tags map[string]string) (domain.ResourceOutcome, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[name] {
		return domain.OutcomeAlreadyExisted, nil
	}
	f.buckets[name] = true
	f.creates++
	return domain.OutcomeCreated, nil
}

func (f *fakeBuckets) DeleteBucket(ctx context.Context, name string) (domain.ResourceOutcome, error) {
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.buckets[name] {
		return domain.OutcomeNotFound, nil
	}
	delete(f.buckets, name)
	return domain.OutcomeDeleted, nil
}
