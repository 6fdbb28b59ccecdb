package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// StreamName is the single Redis Stream every outbox row is relayed onto.
// Stream readers tell events apart by the "subject" field; this module
// has no stream reader of its own.
const StreamName = "signalbeam.events"

// OutboxStore is the slice of internal/store the relay polls. Rows are
// claimed and marked published one at a time so a relay crash mid-batch
// redelivers rather than drops.
type OutboxStore interface {
	ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxEventPublished(ctx context.Context, id uint64) error
}

// Relay publishes transactional-outbox rows to Redis Streams at-least-once.
// It is a pure producer: nothing in this module reads the stream back, and
// internal/alertengine only writes outbox rows, it never reads them.
type Relay struct {
	client *redis.Client
	store  OutboxStore
	log    logrus.FieldLogger
}

func NewRelay(client *redis.Client, store OutboxStore, log logrus.FieldLogger) *Relay {
	return &Relay{client: client, store: store, log: log}
}

// RelayOnce drains up to batchSize unpublished outbox rows, publishing each
// as a Redis Streams entry before marking it published. A publish failure on
// one row stops the batch but leaves already-published rows marked, so the
// next call resumes from where it left off.
func (r *Relay) RelayOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := r.store.ListUnpublishedOutboxEvents(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing unpublished outbox events: %w", err)
	}

	published := 0
	for _, row := range rows {
		_, err := r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamName,
			Values: map[string]any{
				"subject":  row.Subject,
				"tenantId": row.TenantID.String(),
				"payload":  string(row.Payload),
			},
		}).Result()
		if err != nil {
			return published, fmt.Errorf("publishing outbox event %d (%s): %w", row.ID, row.Subject, err)
		}

		if err := r.store.MarkOutboxEventPublished(ctx, row.ID); err != nil {
			return published, fmt.Errorf("marking outbox event %d published: %w", row.ID, err)
		}
		published++

		r.log.WithFields(logrus.Fields{
			"outbox_id": row.ID,
			"subject":   row.Subject,
			"tenant_id": row.TenantID,
		}).Debug("relayed outbox event")
	}

	return published, nil
}
