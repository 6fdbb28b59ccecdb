package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/alertengine"
	"github.com/signalbeam/signalbeam/internal/desiredstate"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
)

// memStore is an in-memory Store for executor tests. It enforces the same
// OCC contract the real gorm-backed store would.
type memStore struct {
	mu       sync.Mutex
	rollouts map[domain.RolloutID]*domain.Rollout
	outbox   []events.OutboxEvent
}

func newMemStore() *memStore {
	return &memStore{rollouts: map[domain.RolloutID]*domain.Rollout{}}
}

func (s *memStore) put(r *domain.Rollout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := deepCopyRollout(r)
	s.rollouts[r.RolloutID] = cp
}

func (s *memStore) LoadRollout(ctx context.Context, tenant domain.TenantID, id domain.RolloutID) (*domain.Rollout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rollouts[id]
	if !ok {
		return nil, nil
	}
	return deepCopyRollout(r), nil
}

func (s *memStore) ListNonTerminalRolloutIDs(ctx context.Context, tenant domain.TenantID) ([]domain.RolloutID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []domain.RolloutID
	for id, r := range s.rollouts {
		if !r.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) FindActiveRolloutForDevice(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*domain.RolloutID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rollouts {
		if r.Status.IsTerminal() {
			continue
		}
		for _, phase := range r.Phases {
			for _, a := range phase.DeviceAssignments {
				if a.DeviceID == device && !a.Status.IsTerminal() {
					idCopy := id
					return &idCopy, nil
				}
			}
		}
	}
	return nil, nil
}

func (s *memStore) SaveRollout(ctx context.Context, rollout *domain.Rollout, expectedVersion int, outbox []events.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rollouts[rollout.RolloutID]
	if !ok {
		return domain.NewNotFoundError("rollout %s not found", rollout.RolloutID)
	}
	if current.Version != expectedVersion {
		return domain.NewConflictError("rollout %s: version mismatch (have %d, expected %d)", rollout.RolloutID, current.Version, expectedVersion)
	}
	rollout.Version = expectedVersion + 1
	s.rollouts[rollout.RolloutID] = deepCopyRollout(rollout)
	s.outbox = append(s.outbox, outbox...)
	return nil
}

func deepCopyRollout(r *domain.Rollout) *domain.Rollout {
	cp := *r
	cp.Phases = make([]domain.RolloutPhase, len(r.Phases))
	for i, p := range r.Phases {
		cp.Phases[i] = p
		cp.Phases[i].DeviceAssignments = make([]domain.RolloutDeviceAssignment, len(p.DeviceAssignments))
		copy(cp.Phases[i].DeviceAssignments, p.DeviceAssignments)
	}
	return &cp
}

// fakeBundleSource serves a fixed set of bundle versions, keyed by version
// string.
type fakeBundleSource struct {
	versions map[string]*domain.BundleVersion
}

func newFakeBundleSource() *fakeBundleSource {
	return &fakeBundleSource{versions: map[string]*domain.BundleVersion{}}
}

func (f *fakeBundleSource) add(version string, v *domain.BundleVersion) {
	f.versions[version] = v
}

func (f *fakeBundleSource) GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error) {
	return f.versions[version], nil
}

// memDesiredStateStore is an in-memory desiredstate.Store.
type memDesiredStateStore struct {
	mu      sync.Mutex
	records map[domain.DeviceID]desiredstate.Record
}

func newMemDesiredStateStore() *memDesiredStateStore {
	return &memDesiredStateStore{records: map[domain.DeviceID]desiredstate.Record{}}
}

func (s *memDesiredStateStore) GetDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*desiredstate.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[device]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (s *memDesiredStateStore) UpsertDesiredState(ctx context.Context, rec desiredstate.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DeviceID] = rec
	return nil
}

func (s *memDesiredStateStore) ClearDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, device)
	return nil
}

func (s *memDesiredStateStore) UpdateReportedStatus(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, status domain.DeploymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[device]
	rec.DeploymentStatus = status
	s.records[device] = rec
	return nil
}

// memAlertStore is an in-memory alertengine.Store.
type memAlertStore struct {
	mu     sync.Mutex
	active map[string]*domain.Alert
	outbox []events.OutboxEvent
}

func (s *memAlertStore) AppendOutboxEvent(ctx context.Context, evt events.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, evt)
	return nil
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{active: map[string]*domain.Alert{}}
}

func (s *memAlertStore) GetActiveAlert(ctx context.Context, key alertengine.Key) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[key.String()], nil
}

func (s *memAlertStore) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert.ID = uuid.New()
	var key alertengine.Key
	if alert.DeviceID != nil {
		key = alertengine.DeviceKey(alert.TenantID, alert.Type, *alert.DeviceID)
	} else if alert.RolloutID != nil {
		key = alertengine.RolloutKey(alert.TenantID, alert.Type, *alert.RolloutID)
	}
	s.active[key.String()] = alert
	return nil
}

func (s *memAlertStore) TouchLastSeen(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.active {
		if a.ID == alertID {
			a.LastSeenAt = at
		}
	}
	return nil
}

func (s *memAlertStore) UpdateStatus(ctx context.Context, alertID uuid.UUID, status domain.AlertStatus, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.active {
		if a.ID == alertID {
			a.Status = status
			if status != domain.AlertStatusActive {
				delete(s.active, k)
			}
		}
	}
	return nil
}
