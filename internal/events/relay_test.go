package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxStore struct {
	rows      []OutboxEvent
	published []uint64
	markErr   error
}

func (f *fakeOutboxStore) ListUnpublishedOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeOutboxStore) MarkOutboxEventPublished(ctx context.Context, id uint64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func TestRelay_RelayOnce_PublishesAndMarks(t *testing.T) {
	client, mock := redismock.NewClientMock()
	tenant := domain.NewTenantID()
	payload, err := json.Marshal(RolloutCreated{RolloutID: domain.NewRolloutID(), TenantID: tenant})
	require.NoError(t, err)

	store := &fakeOutboxStore{rows: []OutboxEvent{
		{ID: 1, TenantID: tenant, Subject: SubjectRolloutCreated, Payload: payload},
	}}

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]any{
			"subject":  SubjectRolloutCreated,
			"tenantId": tenant.String(),
			"payload":  string(payload),
		},
	}).SetVal("1-0")

	relay := NewRelay(client, store, logrus.New())
	n, err := relay.RelayOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{1}, store.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelay_RelayOnce_PublishFailureStopsBatch(t *testing.T) {
	client, mock := redismock.NewClientMock()
	tenant := domain.NewTenantID()
	store := &fakeOutboxStore{rows: []OutboxEvent{
		{ID: 1, TenantID: tenant, Subject: SubjectRolloutCreated, Payload: json.RawMessage(`{}`)},
		{ID: 2, TenantID: tenant, Subject: SubjectRolloutStarted, Payload: json.RawMessage(`{}`)},
	}}

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]any{
			"subject":  SubjectRolloutCreated,
			"tenantId": tenant.String(),
			"payload":  "{}",
		},
	}).SetErr(errors.New("connection refused"))

	relay := NewRelay(client, store, logrus.New())
	n, err := relay.RelayOnce(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.published)
}

func TestRelay_RelayOnce_NoRows(t *testing.T) {
	client, _ := redismock.NewClientMock()
	store := &fakeOutboxStore{}
	relay := NewRelay(client, store, logrus.New())

	n, err := relay.RelayOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
