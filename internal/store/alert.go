package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/alertengine"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"gorm.io/gorm"
)

// GetActiveAlert implements alertengine.Store. ResourceID is the device's
// or rollout's id rendered as a string, or "" for a tenant-wide signal;
// the matching column is picked accordingly.
func (s *Store) GetActiveAlert(ctx context.Context, key alertengine.Key) (*domain.Alert, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND type = ? AND status = ?", uuid.UUID(key.TenantID), string(key.Type), string(domain.AlertStatusActive))
	if key.ResourceID == "" {
		q = q.Where("device_id IS NULL AND rollout_id IS NULL")
	} else {
		q = q.Where("device_id = ? OR rollout_id = ?", key.ResourceID, key.ResourceID)
	}

	var row AlertModel
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alertFromModel(row), nil
}

// CreateAlert implements alertengine.Store.
func (s *Store) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	row := alertToModel(alert)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	return nil
}

// AppendOutboxEvent implements alertengine.Store: alert.* events go through
// the same outbox table the executor's tick transaction writes, so the relay
// delivers them with the same at-least-once contract.
func (s *Store) AppendOutboxEvent(ctx context.Context, evt events.OutboxEvent) error {
	row, err := outboxToModel(evt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// TouchLastSeen implements alertengine.Store's dedup-refresh path.
func (s *Store) TouchLastSeen(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&AlertModel{}).
		Where("id = ?", alertID).
		Update("last_seen_at", at).Error
}

// UpdateStatus implements alertengine.Store's Acknowledge/Resolve transitions.
func (s *Store) UpdateStatus(ctx context.Context, alertID uuid.UUID, status domain.AlertStatus, by string, at time.Time) error {
	updates := map[string]any{"status": string(status)}
	switch status {
	case domain.AlertStatusAcknowledged:
		updates["ack_by"] = by
		updates["ack_at"] = at
	case domain.AlertStatusResolved:
		updates["resolved_at"] = at
	}
	return s.db.WithContext(ctx).Model(&AlertModel{}).
		Where("id = ?", alertID).
		Updates(updates).Error
}

func alertToModel(a *domain.Alert) AlertModel {
	m := AlertModel{
		ID:          a.ID,
		TenantID:    uuid.UUID(a.TenantID),
		Severity:    string(a.Severity),
		Type:        string(a.Type),
		Title:       a.Title,
		Description: a.Description,
		CreatedAt:   a.CreatedAt,
		LastSeenAt:  a.LastSeenAt,
		Status:      string(a.Status),
		AckBy:       a.AckBy,
		AckAt:       a.AckAt,
		ResolvedAt:  a.ResolvedAt,
	}
	if a.DeviceID != nil {
		id := uuid.UUID(*a.DeviceID)
		m.DeviceID = &id
	}
	if a.RolloutID != nil {
		id := uuid.UUID(*a.RolloutID)
		m.RolloutID = &id
	}
	return m
}

func alertFromModel(m AlertModel) *domain.Alert {
	a := &domain.Alert{
		ID:          m.ID,
		TenantID:    domain.TenantID(m.TenantID),
		Severity:    domain.AlertSeverity(m.Severity),
		Type:        domain.AlertType(m.Type),
		Title:       m.Title,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		LastSeenAt:  m.LastSeenAt,
		Status:      domain.AlertStatus(m.Status),
		AckBy:       m.AckBy,
		AckAt:       m.AckAt,
		ResolvedAt:  m.ResolvedAt,
	}
	if m.DeviceID != nil {
		id := domain.DeviceID(*m.DeviceID)
		a.DeviceID = &id
	}
	if m.RolloutID != nil {
		id := domain.RolloutID(*m.RolloutID)
		a.RolloutID = &id
	}
	return a
}
