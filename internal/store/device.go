package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/signalbeam/signalbeam/internal/domain"
)

// ListDeviceIDs, ListDevices and GetDevices implement selector.DeviceSource.

func (s *Store) ListDeviceIDs(ctx context.Context, tenant domain.TenantID) ([]domain.DeviceID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&DeviceModel{}).
		Where("tenant_id = ?", uuid.UUID(tenant)).
		Pluck("device_id", &ids).Error; err != nil {
		return nil, err
	}
	return toDeviceIDs(ids), nil
}

func (s *Store) ListDevices(ctx context.Context, tenant domain.TenantID) ([]domain.Device, error) {
	var rows []DeviceModel
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", uuid.UUID(tenant)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return devicesFromModels(rows), nil
}

func (s *Store) GetDevices(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []DeviceModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND device_id IN ?", uuid.UUID(tenant), fromDeviceIDs(ids)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return devicesFromModels(rows), nil
}

// GetGroup and ListStaticMembers implement selector.GroupSource.

func (s *Store) GetGroup(ctx context.Context, tenant domain.TenantID, id domain.GroupID) (*domain.Group, error) {
	var row GroupModel
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", uuid.UUID(tenant), uuid.UUID(id)).First(&row).Error
	if err != nil {
		return nil, ignoreNotFound(err)
	}
	return &domain.Group{
		ID:        domain.GroupID(row.ID),
		TenantID:  domain.TenantID(row.TenantID),
		Name:      row.Name,
		Type:      domain.GroupType(row.Type),
		TagQuery:  row.TagQuery,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) ListStaticMembers(ctx context.Context, tenant domain.TenantID, group domain.GroupID) ([]domain.DeviceID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&GroupMembershipModel{}).
		Where("group_id = ?", uuid.UUID(group)).
		Pluck("device_id", &ids).Error; err != nil {
		return nil, err
	}
	return toDeviceIDs(ids), nil
}

// DeviceInNonTerminalRollout implements planner.Store, enforcing I5 at
// creation time: a device already holding a non-terminal assignment in a
// different rollout cannot be targeted again.
func (s *Store) DeviceInNonTerminalRollout(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.DeviceID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var busy []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&RolloutDeviceAssignmentModel{}).
		Joins("JOIN rollouts ON rollouts.rollout_id = rollout_device_assignments.rollout_id").
		Where("rollouts.tenant_id = ?", uuid.UUID(tenant)).
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
		Where("rollout_device_assignments.device_id IN ?", fromDeviceIDs(ids)).
		Distinct().
		Pluck("rollout_device_assignments.device_id", &busy).Error
	if err != nil {
		return nil, err
	}
	return toDeviceIDs(busy), nil
}

func devicesFromModels(rows []DeviceModel) []domain.Device {
	out := make([]domain.Device, len(rows))
	for i, row := range rows {
		d := domain.Device{
			DeviceID:         domain.DeviceID(row.DeviceID),
			TenantID:         domain.TenantID(row.TenantID),
			Tags:             row.Tags,
			DeploymentStatus: domain.DeploymentStatus(row.DeploymentStatus),
		}
		if row.GroupID != nil {
			d.GroupID = lo.ToPtr(domain.GroupID(*row.GroupID))
		}
		if row.AssignedBundleID != nil {
			d.AssignedBundleID = lo.ToPtr(domain.BundleID(*row.AssignedBundleID))
		}
		out[i] = d
	}
	return out
}

func toDeviceIDs(ids []uuid.UUID) []domain.DeviceID {
	return lo.Map(ids, func(id uuid.UUID, _ int) domain.DeviceID { return domain.DeviceID(id) })
}

func fromDeviceIDs(ids []domain.DeviceID) []uuid.UUID {
	return lo.Map(ids, func(id domain.DeviceID, _ int) uuid.UUID { return uuid.UUID(id) })
}
