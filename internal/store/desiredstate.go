package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/desiredstate"
	"github.com/signalbeam/signalbeam/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetDesiredState implements desiredstate.Store.
func (s *Store) GetDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*desiredstate.Record, error) {
	var row DesiredStateModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND device_id = ?", uuid.UUID(tenant), uuid.UUID(device)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return desiredStateFromModel(row), nil
}

// UpsertDesiredState implements desiredstate.Store: one row per device,
// replaced wholesale on every assignment.
func (s *Store) UpsertDesiredState(ctx context.Context, rec desiredstate.Record) error {
	row := desiredStateToModel(rec)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bundle_id", "version", "manifest_url", "checksum", "size_bytes",
			"assigned_at", "assigned_by",
		}),
	}).Create(&row).Error
}

// ClearDesiredState implements desiredstate.Store by blanking the target
// fields rather than deleting the row, so DeploymentStatus survives a clear.
func (s *Store) ClearDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, by string) error {
	return s.db.WithContext(ctx).Model(&DesiredStateModel{}).
		Where("tenant_id = ? AND device_id = ?", uuid.UUID(tenant), uuid.UUID(device)).
		Updates(map[string]any{
			"bundle_id":    nil,
			"version":      nil,
			"manifest_url": "",
			"checksum":     "",
			"size_bytes":   0,
			"assigned_by":  by,
		}).Error
}

// UpdateReportedStatus implements desiredstate.Store, projecting an agent's
// self-reported deployment status onto the index row.
func (s *Store) UpdateReportedStatus(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, status domain.DeploymentStatus) error {
	return s.db.WithContext(ctx).Model(&DesiredStateModel{}).
		Where("tenant_id = ? AND device_id = ?", uuid.UUID(tenant), uuid.UUID(device)).
		Update("deployment_status", string(status)).Error
}

func desiredStateToModel(rec desiredstate.Record) DesiredStateModel {
	m := DesiredStateModel{
		DeviceID:         uuid.UUID(rec.DeviceID),
		TenantID:         uuid.UUID(rec.TenantID),
		ManifestURL:      rec.ManifestURL,
		Checksum:         rec.Checksum,
		SizeBytes:        rec.SizeBytes,
		AssignedAt:       rec.AssignedAt,
		AssignedBy:       rec.AssignedBy,
		DeploymentStatus: string(rec.DeploymentStatus),
	}
	if rec.BundleID != nil {
		id := uuid.UUID(*rec.BundleID)
		m.BundleID = &id
	}
	m.Version = rec.Version
	return m
}

func desiredStateFromModel(m DesiredStateModel) *desiredstate.Record {
	rec := &desiredstate.Record{
		DeviceID:         domain.DeviceID(m.DeviceID),
		TenantID:         domain.TenantID(m.TenantID),
		Version:          m.Version,
		ManifestURL:      m.ManifestURL,
		Checksum:         m.Checksum,
		SizeBytes:        m.SizeBytes,
		AssignedAt:       m.AssignedAt,
		AssignedBy:       m.AssignedBy,
		DeploymentStatus: domain.DeploymentStatus(m.DeploymentStatus),
	}
	if m.BundleID != nil {
		id := domain.BundleID(*m.BundleID)
		rec.BundleID = &id
	}
	return rec
}
