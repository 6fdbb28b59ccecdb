package desiredstate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records map[domain.DeviceID]Record
	writes  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[domain.DeviceID]Record{}}
}

func (f *fakeStore) GetDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*Record, error) {
	rec, ok := f.records[device]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) UpsertDesiredState(ctx context.Context, rec Record) error {
	f.records[rec.DeviceID] = rec
	f.writes++
	return nil
}

func (f *fakeStore) ClearDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, by string) error {
	delete(f.records, device)
	return nil
}

func (f *fakeStore) UpdateReportedStatus(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, status domain.DeploymentStatus) error {
	rec := f.records[device]
	rec.DeploymentStatus = status
	f.records[device] = rec
	return nil
}

func TestIndex_Assign_IsNoOpOnSameVersion(t *testing.T) {
	store := newFakeStore()
	idx := NewIndex(store)
	ctx := context.Background()
	tenant := domain.NewTenantID()
	device := domain.NewDeviceID()
	bundle := domain.NewBundleID()

	require.NoError(t, idx.Assign(ctx, tenant, device, bundle, "1.0.0", "https://x/manifest", "sha256:abc", 100, "executor"))
	assert.Equal(t, 1, store.writes)

	require.NoError(t, idx.Assign(ctx, tenant, device, bundle, "1.0.0", "https://x/manifest", "sha256:abc", 100, "executor"))
	assert.Equal(t, 1, store.writes, "assigning the same (bundleId, version) must not write again")
}

func TestIndex_Assign_NewVersionWrites(t *testing.T) {
	store := newFakeStore()
	idx := NewIndex(store)
	ctx := context.Background()
	tenant := domain.NewTenantID()
	device := domain.NewDeviceID()
	bundle := domain.NewBundleID()

	require.NoError(t, idx.Assign(ctx, tenant, device, bundle, "1.0.0", "u", "c", 1, "executor"))
	require.NoError(t, idx.Assign(ctx, tenant, device, bundle, "2.0.0", "u2", "c2", 2, "executor"))
	assert.Equal(t, 2, store.writes)
}

func TestIndex_Render_NoRecordYieldsNullDesiredState(t *testing.T) {
	store := newFakeStore()
	idx := NewIndex(store)
	ctx := context.Background()
	device := domain.NewDeviceID()

	doc, err := idx.Render(ctx, domain.NewTenantID(), device)
	require.NoError(t, err)
	assert.Equal(t, device.String(), doc.DeviceID)
	assert.Nil(t, doc.BundleID)
	assert.Nil(t, doc.Version)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceId":"`+device.String()+`","desiredState":null}`, string(raw))
}

func TestIndex_Render_WithRecord(t *testing.T) {
	store := newFakeStore()
	idx := NewIndex(store)
	ctx := context.Background()
	tenant := domain.NewTenantID()
	device := domain.NewDeviceID()
	bundle := domain.NewBundleID()

	require.NoError(t, idx.Assign(ctx, tenant, device, bundle, "1.2.3", "https://x/manifest", FormatChecksum("deadbeef"), 2048, "executor"))

	doc, err := idx.Render(ctx, tenant, device)
	require.NoError(t, err)
	require.NotNil(t, doc.BundleID)
	assert.Equal(t, bundle.String(), *doc.BundleID)
	require.NotNil(t, doc.Version)
	assert.Equal(t, "1.2.3", *doc.Version)
	require.NotNil(t, doc.Checksum)
	assert.Equal(t, "sha256:deadbeef", *doc.Checksum)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "desiredState", "a device with a target must not carry the desiredState field")
}

func TestIndex_Clear(t *testing.T) {
	store := newFakeStore()
	idx := NewIndex(store)
	ctx := context.Background()
	tenant := domain.NewTenantID()
	device := domain.NewDeviceID()

	require.NoError(t, idx.Assign(ctx, tenant, device, domain.NewBundleID(), "1.0.0", "u", "c", 1, "executor"))
	require.NoError(t, idx.Clear(ctx, tenant, device, "executor"))

	doc, err := idx.Render(ctx, tenant, device)
	require.NoError(t, err)
	assert.Nil(t, doc.BundleID)
}
