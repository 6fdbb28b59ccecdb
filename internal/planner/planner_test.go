package planner

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"github.com/signalbeam/signalbeam/internal/selector"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBundleSource struct {
	versions map[string]*domain.BundleVersion
}

func (f *fakeBundleSource) GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error) {
	return f.versions[version], nil
}

type fakeStore struct {
	busy    map[domain.DeviceID]bool
	created *domain.Rollout
	outbox  []events.OutboxEvent
}

func (f *fakeStore) DeviceInNonTerminalRollout(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.DeviceID, error) {
	var busy []domain.DeviceID
	for _, id := range ids {
		if f.busy[id] {
			busy = append(busy, id)
		}
	}
	return busy, nil
}

func (f *fakeStore) CreateRollout(ctx context.Context, rollout *domain.Rollout, outbox []events.OutboxEvent) error {
	f.created = rollout
	f.outbox = append(f.outbox, outbox...)
	return nil
}

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

type fakeGroupSource struct{}

func (f *fakeGroupSource) GetGroup(ctx context.Context, tenant domain.TenantID, id domain.GroupID) (*domain.Group, error) {
	return nil, nil
}

func (f *fakeGroupSource) ListStaticMembers(ctx context.Context, tenant domain.TenantID, group domain.GroupID) ([]domain.DeviceID, error) {
	return nil, nil
}

func newPlannerWithDevices(n int) (*Planner, *fakeStore, []domain.DeviceID) {
	devices := make([]domain.DeviceID, n)
	fakeDevices := make([]domain.Device, n)
	for i := range devices {
		devices[i] = domain.NewDeviceID()
		fakeDevices[i] = domain.Device{DeviceID: devices[i]}
	}
	store := &fakeStore{busy: map[domain.DeviceID]bool{}}
	bundles := &fakeBundleSource{versions: map[string]*domain.BundleVersion{
		"2.0.0": {Version: "2.0.0", Status: domain.BundleStatusPublished},
	}}
	resolver := selector.NewResolver(&fakeDeviceSource{devices: fakeDevices}, &fakeGroupSource{})
	p := New(store, bundles, resolver, logrus.New())
	return p, store, devices
}

func baseRequest(devices []domain.DeviceID) CreateRolloutRequest {
	return CreateRolloutRequest{
		TenantID:         domain.NewTenantID(),
		BundleID:         domain.NewBundleID(),
		TargetVersion:    "2.0.0",
		TargetSelector:   domain.DeviceIDsSelector(devices),
		FailureThreshold: 0.1,
		Phases: []domain.PhasePlan{
			{Name: "canary", TargetPercentage: 10},
			{Name: "rest", TargetPercentage: 100},
		},
	}
}

func TestCreatePhasedRollout_MaterializesPhasesInOrder(t *testing.T) {
	p, _, devices := newPlannerWithDevices(10)
	req := baseRequest(devices)

	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rollout.Phases, 2)
	assert.Equal(t, 1, rollout.Phases[0].TargetDeviceCount)
	assert.Equal(t, 9, rollout.Phases[1].TargetDeviceCount)
	assert.Equal(t, domain.RolloutStatusPending, rollout.Status)
	assert.Equal(t, 0, rollout.CurrentPhaseNumber)
}

func TestCreatePhasedRollout_SinglePhaseFullRollout(t *testing.T) {
	p, _, devices := newPlannerWithDevices(5)
	req := baseRequest(devices)
	req.Phases = []domain.PhasePlan{{Name: "all", TargetPercentage: 100}}

	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rollout.Phases, 1)
	assert.Equal(t, 5, rollout.Phases[0].TargetDeviceCount)
}

func TestCreatePhasedRollout_RejectsEmptyTargetSet(t *testing.T) {
	p, _, _ := newPlannerWithDevices(0)
	req := baseRequest(nil)

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestCreatePhasedRollout_RejectsNonMonotonicPercentages(t *testing.T) {
	p, _, devices := newPlannerWithDevices(10)
	req := baseRequest(devices)
	req.Phases = []domain.PhasePlan{
		{Name: "a", TargetPercentage: 50},
		{Name: "b", TargetPercentage: 30},
	}

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestCreatePhasedRollout_RejectsFinalPhaseUnder100(t *testing.T) {
	p, _, devices := newPlannerWithDevices(10)
	req := baseRequest(devices)
	req.Phases = []domain.PhasePlan{{Name: "a", TargetPercentage: 90}}

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestCreatePhasedRollout_RejectsBusyDevices(t *testing.T) {
	p, store, devices := newPlannerWithDevices(3)
	store.busy[devices[0]] = true
	req := baseRequest(devices)
	req.Phases = []domain.PhasePlan{{Name: "all", TargetPercentage: 100}}

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestCreatePhasedRollout_RejectsUnknownBundleVersion(t *testing.T) {
	p, _, devices := newPlannerWithDevices(3)
	req := baseRequest(devices)
	req.TargetVersion = "9.9.9"
	req.Phases = []domain.PhasePlan{{Name: "all", TargetPercentage: 100}}

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestCreatePhasedRollout_RejectsUnknownPreviousVersion(t *testing.T) {
	p, _, devices := newPlannerWithDevices(3)
	req := baseRequest(devices)
	req.PreviousVersion = "1.0.0"

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestCreatePhasedRollout_RejectsFailureThresholdOutOfRange(t *testing.T) {
	p, _, devices := newPlannerWithDevices(3)
	req := baseRequest(devices)
	req.Phases = []domain.PhasePlan{{Name: "all", TargetPercentage: 100}}
	req.FailureThreshold = 1.5

	_, err := p.CreatePhasedRollout(context.Background(), req)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidationFailed))
}

func TestMaterializePhases_CeilOnCumulativeBoundaryCoversAllDevices(t *testing.T) {
	devices := make([]domain.DeviceID, 7)
	for i := range devices {
		devices[i] = domain.NewDeviceID()
	}
	plans := []domain.PhasePlan{
		{Name: "p1", TargetPercentage: 10},
		{Name: "p2", TargetPercentage: 50},
		{Name: "p3", TargetPercentage: 100},
	}

	phases, err := materializePhases(domain.NewRolloutID(), plans, devices)
	require.Nil(t, err)
	total := 0
	for _, ph := range phases {
		total += ph.TargetDeviceCount
	}
	assert.Equal(t, len(devices), total, "every device must be assigned to exactly one phase")
	assert.Equal(t, len(devices), phases[len(phases)-1].TargetDeviceCount+sumBefore(phases))
}

// TestMaterializePhases_DeterministicAcrossRuns covers the §8 round-trip
// property: given identical inputs and target-set ordering, two
// materializations must produce identical per-phase device assignments
// (ignoring the randomly generated PhaseID/AssignmentID values).
func TestMaterializePhases_DeterministicAcrossRuns(t *testing.T) {
	devices := make([]domain.DeviceID, 23)
	for i := range devices {
		devices[i] = domain.NewDeviceID()
	}
	plans := []domain.PhasePlan{
		{Name: "canary", TargetPercentage: 5},
		{Name: "wide", TargetPercentage: 25},
		{Name: "rest", TargetPercentage: 100},
	}

	rolloutID := domain.NewRolloutID()
	first, err := materializePhases(rolloutID, plans, devices)
	require.Nil(t, err)
	second, err := materializePhases(rolloutID, plans, devices)
	require.Nil(t, err)

	ignoreGeneratedIDs := cmpopts.IgnoreFields(domain.RolloutPhase{}, "PhaseID")
	ignoreAssignmentIDs := cmpopts.IgnoreFields(domain.RolloutDeviceAssignment{}, "AssignmentID", "PhaseID")
	if diff := cmp.Diff(first, second, ignoreGeneratedIDs, ignoreAssignmentIDs); diff != "" {
		t.Fatalf("materialization is not deterministic (-first +second):\n%s", diff)
	}
}

func sumBefore(phases []domain.RolloutPhase) int {
	total := 0
	for i := 0; i < len(phases)-1; i++ {
		total += phases[i].TargetDeviceCount
	}
	return total
}

func TestCreatePhasedRollout_StampsRolloutAndPhaseIDsOnAssignments(t *testing.T) {
	p, _, devices := newPlannerWithDevices(6)
	req := baseRequest(devices)

	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)

	for _, ph := range rollout.Phases {
		assert.Equal(t, rollout.RolloutID, ph.RolloutID)
		for _, a := range ph.DeviceAssignments {
			assert.Equal(t, rollout.RolloutID, a.RolloutID)
			assert.Equal(t, ph.PhaseID, a.PhaseID)
		}
	}
}

func TestCreatePhasedRollout_EmitsRolloutCreatedEvent(t *testing.T) {
	p, store, devices := newPlannerWithDevices(4)
	req := baseRequest(devices)

	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, store.outbox, 1)
	assert.Equal(t, events.SubjectRolloutCreated, store.outbox[0].Subject)
	assert.Contains(t, string(store.outbox[0].Payload), rollout.RolloutID.String())
}

// TestCreatePhasedRollout_TargetSetFrozenAtPlanning covers the
// dynamic-membership-shift scenario: a device that starts matching the
// rollout's tag query after planning is not pulled into the in-flight
// rollout, because assignments are materialized once at creation time.
func TestCreatePhasedRollout_TargetSetFrozenAtPlanning(t *testing.T) {
	fakeDevices := make([]domain.Device, 10)
	for i := range fakeDevices {
		fakeDevices[i] = domain.Device{DeviceID: domain.NewDeviceID(), Tags: []string{"location=warehouse-1"}}
	}
	source := &fakeDeviceSource{devices: fakeDevices}
	store := &fakeStore{busy: map[domain.DeviceID]bool{}}
	bundles := &fakeBundleSource{versions: map[string]*domain.BundleVersion{
		"2.0.0": {Version: "2.0.0", Status: domain.BundleStatusPublished},
	}}
	p := New(store, bundles, selector.NewResolver(source, &fakeGroupSource{}), logrus.New())

	req := baseRequest(nil)
	req.TargetSelector = domain.TagQuerySelector("location=warehouse-*")
	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)

	source.devices = append(source.devices, domain.Device{DeviceID: domain.NewDeviceID(), Tags: []string{"location=warehouse-5"}})

	total := 0
	for _, ph := range rollout.Phases {
		total += len(ph.DeviceAssignments)
	}
	assert.Equal(t, 10, total, "a device matching the query after planning must not join the rollout")
}

func TestCreatePhasedRollout_SetsMinHealthyDurationOnPhase(t *testing.T) {
	p, _, devices := newPlannerWithDevices(4)
	req := baseRequest(devices)
	dur := 10 * time.Minute
	req.Phases = []domain.PhasePlan{
		{Name: "canary", TargetPercentage: 25, MinHealthyDuration: &dur},
		{Name: "rest", TargetPercentage: 100},
	}

	rollout, err := p.CreatePhasedRollout(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, rollout.Phases[0].MinHealthyDuration)
	assert.Equal(t, dur, *rollout.Phases[0].MinHealthyDuration)
	assert.Nil(t, rollout.Phases[1].MinHealthyDuration)
}
