package store

import (
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRollout implements planner.Store: it inserts the rollout, its
// materialized phases, their Pending device assignments and the
// rollout.created outbox row in one transaction.
func (s *Store) CreateRollout(ctx context.Context, rollout *domain.Rollout, outbox []events.OutboxEvent) error {
	model := rolloutToModel(rollout)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Create(model).Error; err != nil {
			return err
		}
		for i := range outbox {
			row, err := outboxToModel(outbox[i])
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadRollout implements executor.Store: it eager-loads phases and their
// device assignments so the Executor's entire control loop operates on an
// in-memory aggregate with no further reads.
func (s *Store) LoadRollout(ctx context.Context, tenant domain.TenantID, id domain.RolloutID) (*domain.Rollout, error) {
	var model RolloutModel
	err := s.db.WithContext(ctx).
		Preload("Phases", func(db *gorm.DB) *gorm.DB { return db.Order("phase_number ASC") }).
		Preload("Phases.DeviceAssignments").
		Where("tenant_id = ? AND rollout_id = ?", uuid.UUID(tenant), uuid.UUID(id)).
		First(&model).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return rolloutFromModel(model), nil
}

// ListNonTerminalRolloutIDs implements executor.Store for the scheduler's
// periodic sweep (internal/executor/scheduler.go).
func (s *Store) ListNonTerminalRolloutIDs(ctx context.Context, tenant domain.TenantID) ([]domain.RolloutID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&RolloutModel{}).
		Where("tenant_id = ?", uuid.UUID(tenant)).
		Where("status NOT IN ?", []string{
			string(domain.RolloutStatusCompleted),
			string(domain.RolloutStatusRolledBack),
			string(domain.RolloutStatusFailed),
		}).
		Pluck("rollout_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.RolloutID, len(ids))
	for i, id := range ids {
		out[i] = domain.RolloutID(id)
	}
	return out, nil
}

// FindActiveRolloutForDevice implements executor.Store, enforcing I5 at
// read time for ReportDeviceState: a device participates in at most one
// non-terminal rollout.
func (s *Store) FindActiveRolloutForDevice(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*domain.RolloutID, error) {
	var rolloutID uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&RolloutDeviceAssignmentModel{}).
		Select("rollout_device_assignments.rollout_id").
		Joins("JOIN rollouts ON rollouts.rollout_id = rollout_device_assignments.rollout_id").
		Where("rollouts.tenant_id = ?", uuid.UUID(tenant)).
		Where("rollout_device_assignments.device_id = ?", uuid.UUID(device)).
		Where("rollouts.status NOT IN ?", []string{
			string(domain.RolloutStatusCompleted),
			string(domain.RolloutStatusRolledBack),
			string(domain.RolloutStatusFailed),
		}).
		Where("rollout_device_assignments.status NOT IN ?", []string{
			string(domain.AssignmentStatusSucceeded),
			string(domain.AssignmentStatusFailed),
			string(domain.AssignmentStatusSkipped),
		}).
		Limit(1).
		Scan(&rolloutID).Error
	if err != nil {
		return nil, err
	}
	if rolloutID == uuid.Nil {
		return nil, nil
	}
	id := domain.RolloutID(rolloutID)
	return &id, nil
}

// SaveRollout implements executor.Store's OCC + transactional-outbox
// contract: the rollout row, every phase row, every
// assignment row, and the outbox rows are written in one transaction,
// gated on rollout_id/version matching expectedVersion.
func (s *Store) SaveRollout(ctx context.Context, rollout *domain.Rollout, expectedVersion int, outbox []events.OutboxEvent) error {
	model := rolloutToModel(rollout)
	model.Version = expectedVersion + 1

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&RolloutModel{}).
			Where("rollout_id = ? AND version = ?", model.RolloutID, expectedVersion).
			Updates(map[string]any{
				"status":               model.Status,
				"started_at":           model.StartedAt,
				"completed_at":         model.CompletedAt,
				"current_phase_number": model.CurrentPhaseNumber,
				"version":              model.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewConflictError("rollout %s: version %d is stale", rollout.RolloutID, expectedVersion)
		}

		for i := range model.Phases {
			phase := &model.Phases[i]
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "phase_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"status", "started_at", "completed_at", "success_count", "failure_count"}),
			}).Create(phase).Error; err != nil {
				return err
			}
			for j := range phase.DeviceAssignments {
				a := &phase.DeviceAssignments[j]
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "assignment_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"status", "assigned_at", "reconciled_at", "error_message", "retry_count"}),
				}).Create(a).Error; err != nil {
					return err
				}
			}
		}

		rollout.Version = model.Version

		for i := range outbox {
			row, err := outboxToModel(outbox[i])
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func rolloutToModel(r *domain.Rollout) *RolloutModel {
	m := &RolloutModel{
		RolloutID:          uuid.UUID(r.RolloutID),
		TenantID:           uuid.UUID(r.TenantID),
		BundleID:           uuid.UUID(r.BundleID),
		TargetVersion:      r.TargetVersion,
		PreviousVersion:    r.PreviousVersion,
		Status:             string(r.Status),
		Name:               r.Name,
		Description:        r.Description,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		FailureThreshold:   r.FailureThreshold,
		CurrentPhaseNumber: r.CurrentPhaseNumber,
		Version:            r.Version,
		Phases:             make([]RolloutPhaseModel, len(r.Phases)),
	}
	for i, p := range r.Phases {
		m.Phases[i] = phaseToModel(p)
	}
	return m
}

func phaseToModel(p domain.RolloutPhase) RolloutPhaseModel {
	pm := RolloutPhaseModel{
		PhaseID:           uuid.UUID(p.PhaseID),
		RolloutID:         uuid.UUID(p.RolloutID),
		PhaseNumber:       p.PhaseNumber,
		Name:              p.Name,
		TargetDeviceCount: p.TargetDeviceCount,
		TargetPercentage:  p.TargetPercentage,
		Status:            string(p.Status),
		StartedAt:         p.StartedAt,
		CompletedAt:       p.CompletedAt,
		SuccessCount:      p.SuccessCount,
		FailureCount:      p.FailureCount,
		DeviceAssignments: make([]RolloutDeviceAssignmentModel, len(p.DeviceAssignments)),
	}
	if p.MinHealthyDuration != nil {
		ns := int64(*p.MinHealthyDuration)
		pm.MinHealthyDurationNs = &ns
	}
	for i, a := range p.DeviceAssignments {
		pm.DeviceAssignments[i] = RolloutDeviceAssignmentModel{
			AssignmentID: uuid.UUID(a.AssignmentID),
			RolloutID:    uuid.UUID(a.RolloutID),
			PhaseID:      uuid.UUID(a.PhaseID),
			DeviceID:     uuid.UUID(a.DeviceID),
			Status:       string(a.Status),
			AssignedAt:   a.AssignedAt,
			ReconciledAt: a.ReconciledAt,
			ErrorMessage: a.ErrorMessage,
			RetryCount:   a.RetryCount,
		}
	}
	return pm
}

func rolloutFromModel(m RolloutModel) *domain.Rollout {
	r := &domain.Rollout{
		RolloutID:          domain.RolloutID(m.RolloutID),
		TenantID:           domain.TenantID(m.TenantID),
		BundleID:           domain.BundleID(m.BundleID),
		TargetVersion:      m.TargetVersion,
		PreviousVersion:    m.PreviousVersion,
		Status:             domain.RolloutStatus(m.Status),
		Name:               m.Name,
		Description:        m.Description,
		CreatedBy:          m.CreatedBy,
		CreatedAt:          m.CreatedAt,
		StartedAt:          m.StartedAt,
		CompletedAt:        m.CompletedAt,
		FailureThreshold:   m.FailureThreshold,
		CurrentPhaseNumber: m.CurrentPhaseNumber,
		Version:            m.Version,
		Phases:             make([]domain.RolloutPhase, len(m.Phases)),
	}
	for i, pm := range m.Phases {
		r.Phases[i] = phaseFromModel(pm)
	}
	return r
}

func phaseFromModel(pm RolloutPhaseModel) domain.RolloutPhase {
	p := domain.RolloutPhase{
		PhaseID:           domain.PhaseID(pm.PhaseID),
		RolloutID:         domain.RolloutID(pm.RolloutID),
		PhaseNumber:       pm.PhaseNumber,
		Name:              pm.Name,
		TargetDeviceCount: pm.TargetDeviceCount,
		TargetPercentage:  pm.TargetPercentage,
		Status:            domain.PhaseStatus(pm.Status),
		StartedAt:         pm.StartedAt,
		CompletedAt:       pm.CompletedAt,
		SuccessCount:      pm.SuccessCount,
		FailureCount:      pm.FailureCount,
		DeviceAssignments: make([]domain.RolloutDeviceAssignment, len(pm.DeviceAssignments)),
	}
	if pm.MinHealthyDurationNs != nil {
		d := time.Duration(*pm.MinHealthyDurationNs)
		p.MinHealthyDuration = &d
	}
	for i, am := range pm.DeviceAssignments {
		p.DeviceAssignments[i] = domain.RolloutDeviceAssignment{
			AssignmentID: domain.AssignmentID(am.AssignmentID),
			RolloutID:    domain.RolloutID(am.RolloutID),
			PhaseID:      domain.PhaseID(am.PhaseID),
			DeviceID:     domain.DeviceID(am.DeviceID),
			Status:       domain.AssignmentStatus(am.Status),
			AssignedAt:   am.AssignedAt,
			ReconciledAt: am.ReconciledAt,
			ErrorMessage: am.ErrorMessage,
			RetryCount:   am.RetryCount,
		}
	}
	return p
}
