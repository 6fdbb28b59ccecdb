package selector

import (
	"context"
	"sort"
	"testing"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceSource struct {
	devices []domain.Device
}

func (f *fakeDeviceSource) ListDeviceIDs(ctx context.Context, tenant domain.TenantID) ([]domain.DeviceID, error) {
	ids := make([]domain.DeviceID, len(f.devices))
	for i, d := range f.devices {
		ids[i] = d.DeviceID
	}
	return ids, nil
}

func (f *fakeDeviceSource) ListDevices(ctx context.Context, tenant domain.TenantID) ([]domain.Device, error) {
	return f.devices, nil
}

func (f *fakeDeviceSource) GetDevices(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.Device, error) {
	want := make(map[domain.DeviceID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Device
	for _, d := range f.devices {
		if _, ok := want[d.DeviceID]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeGroupSource struct {
	groups  map[domain.GroupID]*domain.Group
	members map[domain.GroupID][]domain.DeviceID
}

func (f *fakeGroupSource) GetGroup(ctx context.Context, tenant domain.TenantID, id domain.GroupID) (*domain.Group, error) {
	return f.groups[id], nil
}

func (f *fakeGroupSource) ListStaticMembers(ctx context.Context, tenant domain.TenantID, group domain.GroupID) ([]domain.DeviceID, error) {
	return f.members[group], nil
}

func newDevices(n int, tags ...string) []domain.Device {
	out := make([]domain.Device, n)
	for i := range out {
		out[i] = domain.Device{DeviceID: domain.NewDeviceID(), Tags: tags}
	}
	return out
}

func TestExpand_AllDevicesIsLexicographicallyOrdered(t *testing.T) {
	devices := newDevices(20)
	r := NewResolver(&fakeDeviceSource{devices: devices}, &fakeGroupSource{})

	got, err := r.Expand(context.Background(), domain.NewTenantID(), domain.AllDevicesSelector())
	require.NoError(t, err)
	require.Len(t, got, 20)

	sorted := sort.SliceIsSorted(got, func(i, j int) bool { return got[i].String() < got[j].String() })
	assert.True(t, sorted, "expansion must order by deviceId for deterministic materialization")
}

func TestExpand_TagQueryMatchesOnlyTaggedDevices(t *testing.T) {
	warehouse := newDevices(3, "location=warehouse-seattle")
	office := newDevices(2, "location=office-berlin")
	r := NewResolver(&fakeDeviceSource{devices: append(warehouse, office...)}, &fakeGroupSource{})

	got, err := r.Expand(context.Background(), domain.NewTenantID(), domain.TagQuerySelector("location=warehouse-*"))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestExpand_InvalidTagQueryIsValidationError(t *testing.T) {
	r := NewResolver(&fakeDeviceSource{}, &fakeGroupSource{})

	_, err := r.Expand(context.Background(), domain.NewTenantID(), domain.TagQuerySelector("location="))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestExpand_StaticGroupUsesStoredMemberships(t *testing.T) {
	devices := newDevices(4)
	groupID := domain.NewGroupID()
	groups := &fakeGroupSource{
		groups: map[domain.GroupID]*domain.Group{
			groupID: {ID: groupID, Type: domain.GroupTypeStatic},
		},
		members: map[domain.GroupID][]domain.DeviceID{
			groupID: {devices[1].DeviceID, devices[3].DeviceID},
		},
	}
	r := NewResolver(&fakeDeviceSource{devices: devices}, groups)

	got, err := r.Expand(context.Background(), domain.NewTenantID(), domain.GroupSelector(groupID))
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.DeviceID{devices[1].DeviceID, devices[3].DeviceID}, got)
}

func TestExpand_DynamicGroupEvaluatesItsTagQuery(t *testing.T) {
	prod := newDevices(2, "environment=production")
	dev := newDevices(3, "environment=dev")
	groupID := domain.NewGroupID()
	groups := &fakeGroupSource{
		groups: map[domain.GroupID]*domain.Group{
			groupID: {ID: groupID, Type: domain.GroupTypeDynamic, TagQuery: "environment=production"},
		},
	}
	r := NewResolver(&fakeDeviceSource{devices: append(prod, dev...)}, groups)

	got, err := r.Expand(context.Background(), domain.NewTenantID(), domain.GroupSelector(groupID))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestExpand_UnknownGroupIsNotFound(t *testing.T) {
	r := NewResolver(&fakeDeviceSource{}, &fakeGroupSource{})

	_, err := r.Expand(context.Background(), domain.NewTenantID(), domain.GroupSelector(domain.NewGroupID()))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestExpand_DeviceIDsRejectsForeignDevice(t *testing.T) {
	devices := newDevices(2)
	r := NewResolver(&fakeDeviceSource{devices: devices}, &fakeGroupSource{})

	foreign := domain.NewDeviceID()
	_, err := r.Expand(context.Background(), domain.NewTenantID(),
		domain.DeviceIDsSelector([]domain.DeviceID{devices[0].DeviceID, foreign}))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestExpand_DeviceIDsReturnsSortedCopy(t *testing.T) {
	devices := newDevices(5)
	ids := make([]domain.DeviceID, len(devices))
	for i, d := range devices {
		ids[i] = d.DeviceID
	}
	r := NewResolver(&fakeDeviceSource{devices: devices}, &fakeGroupSource{})

	got, err := r.Expand(context.Background(), domain.NewTenantID(), domain.DeviceIDsSelector(ids))
	require.NoError(t, err)
	require.Len(t, got, 5)
	sorted := sort.SliceIsSorted(got, func(i, j int) bool { return got[i].String() < got[j].String() })
	assert.True(t, sorted)
}
