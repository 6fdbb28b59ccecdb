package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
)

// ListUnpublishedOutboxEvents and MarkOutboxEventPublished implement
// events.OutboxStore for the Redis Streams relay.
func (s *Store) ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]events.OutboxEvent, error) {
	var rows []OutboxEventModel
	if err := s.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]events.OutboxEvent, len(rows))
	for i, row := range rows {
		out[i] = events.OutboxEvent{
			ID:          row.ID,
			TenantID:    domain.TenantID(row.TenantID),
			Subject:     row.Subject,
			Payload:     row.Payload,
			CreatedAt:   row.CreatedAt,
			PublishedAt: row.PublishedAt,
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxEventPublished(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&OutboxEventModel{}).
		Where("id = ?", id).
		Update("published_at", &now).Error
}

func outboxToModel(e events.OutboxEvent) (OutboxEventModel, error) {
	return OutboxEventModel{
		TenantID:    uuid.UUID(e.TenantID),
		Subject:     e.Subject,
		Payload:     e.Payload,
		CreatedAt:   time.Now().UTC(),
		PublishedAt: e.PublishedAt,
	}, nil
}
