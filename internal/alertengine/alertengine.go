// Package alertengine implements the rollout-relevant subset of the Alert
// Engine: RolloutFailed, RolloutStalled and
// HighFailureRate alerts, deduplicated per (tenantId, type, resource) while
// Active, where the resource is a device or a rollout (see Key).
package alertengine

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"github.com/sirupsen/logrus"
)

// Key identifies a dedup slot: at most one Active
// alert exists per (tenantId, type, resource?). Resource is the device's or
// rollout's id rendered as a string, or "" for a tenant-wide signal; it is
// not a domain id type because the same key space spans both resource
// kinds and nominal ID types must not be mixed.
type Key struct {
	TenantID   domain.TenantID
	Type       domain.AlertType
	ResourceID string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.Type, k.ResourceID)
}

// DeviceKey builds the dedup key for a device-scoped alert signal.
func DeviceKey(tenant domain.TenantID, alertType domain.AlertType, device domain.DeviceID) Key {
	return Key{TenantID: tenant, Type: alertType, ResourceID: device.String()}
}

// RolloutKey builds the dedup key for a rollout-scoped alert signal.
func RolloutKey(tenant domain.TenantID, alertType domain.AlertType, rollout domain.RolloutID) Key {
	return Key{TenantID: tenant, Type: alertType, ResourceID: rollout.String()}
}

// Store is the persistence boundary for alerts.
type Store interface {
	// GetActiveAlert returns the current Active alert for key, or nil.
	GetActiveAlert(ctx context.Context, key Key) (*domain.Alert, error)
	CreateAlert(ctx context.Context, alert *domain.Alert) error
	TouchLastSeen(ctx context.Context, alertID uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, alertID uuid.UUID, status domain.AlertStatus, by string, at time.Time) error
	// AppendOutboxEvent queues an alert.* event for the Redis Streams
	// relay, same outbox table the executor writes through.
	AppendOutboxEvent(ctx context.Context, evt events.OutboxEvent) error
}

// Engine raises and dedupes rollout alerts.
type Engine struct {
	store Store
	log   logrus.FieldLogger
}

func NewEngine(store Store, log logrus.FieldLogger) *Engine {
	return &Engine{store: store, log: log}
}

// Raise implements dedup rule: a duplicate signal for an
// existing Active alert only refreshes lastSeenAt; otherwise a new alert is
// created.
func (e *Engine) Raise(ctx context.Context, key Key, severity domain.AlertSeverity, title, description string, rolloutID *domain.RolloutID, deviceID *domain.DeviceID) (*domain.Alert, error) {
	existing, err := e.store.GetActiveAlert(ctx, key)
	if err != nil {
		return nil, domain.NewTransientError(err, "looking up active alert for %s", key)
	}

	now := time.Now().UTC()
	if existing != nil {
		if err := e.store.TouchLastSeen(ctx, existing.ID, now); err != nil {
			return nil, domain.NewTransientError(err, "refreshing alert %s", existing.ID)
		}
		existing.LastSeenAt = now
		return existing, nil
	}

	alert := &domain.Alert{
		TenantID:    key.TenantID,
		Severity:    severity,
		Type:        key.Type,
		Title:       title,
		Description: description,
		DeviceID:    deviceID,
		RolloutID:   rolloutID,
		CreatedAt:   now,
		LastSeenAt:  now,
		Status:      domain.AlertStatusActive,
	}
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return nil, domain.NewTransientError(err, "creating alert for %s", key)
	}

	evt, err := events.NewOutboxEvent(key.TenantID, events.SubjectAlertRaised, events.AlertRaised{
		AlertID:   alert.ID,
		TenantID:  key.TenantID,
		Type:      key.Type,
		Severity:  severity,
		Title:     title,
		RolloutID: rolloutID,
		DeviceID:  deviceID,
		CreatedAt: now,
	})
	if err != nil {
		return nil, domain.NewFatalError(err, "marshaling AlertRaised event")
	}
	if err := e.store.AppendOutboxEvent(ctx, evt); err != nil {
		return nil, domain.NewTransientError(err, "queueing alert.raised event for %s", key)
	}

	e.log.WithFields(logrus.Fields{
		"tenant_id":  key.TenantID,
		"alert_type": key.Type,
		"severity":   severity,
	}).Warn("alert raised")

	return alert, nil
}

// Acknowledge transitions an alert Active -> Acknowledged.
func (e *Engine) Acknowledge(ctx context.Context, tenant domain.TenantID, alertID uuid.UUID, by string) error {
	return e.updateStatus(ctx, tenant, alertID, domain.AlertStatusAcknowledged, events.SubjectAlertAcknowledged, by)
}

// Resolve transitions an alert to Resolved, which is terminal: a further
// signal of the same key re-opens a new Active alert.
func (e *Engine) Resolve(ctx context.Context, tenant domain.TenantID, alertID uuid.UUID, by string) error {
	return e.updateStatus(ctx, tenant, alertID, domain.AlertStatusResolved, events.SubjectAlertResolved, by)
}

func (e *Engine) updateStatus(ctx context.Context, tenant domain.TenantID, alertID uuid.UUID, status domain.AlertStatus, subject, by string) error {
	now := time.Now().UTC()
	if err := e.store.UpdateStatus(ctx, alertID, status, by, now); err != nil {
		return domain.NewTransientError(err, "updating alert %s to %s", alertID, status)
	}

	evt, err := events.NewOutboxEvent(tenant, subject, events.AlertStatusChanged{
		AlertID:  alertID,
		TenantID: tenant,
		Status:   status,
		By:       by,
		At:       now,
	})
	if err != nil {
		return domain.NewFatalError(err, "marshaling AlertStatusChanged event")
	}
	if err := e.store.AppendOutboxEvent(ctx, evt); err != nil {
		return domain.NewTransientError(err, "queueing %s event for alert %s", subject, alertID)
	}
	return nil
}

// RolloutFailedTitle and friends centralize the copy for the three
// rollout-relevant alert types.
func RolloutFailedTitle(rolloutID domain.RolloutID) (string, string) {
	return "Rollout rolled back", fmt.Sprintf("Rollout %s was automatically rolled back after exceeding its failure threshold.", rolloutID)
}

func RolloutStalledTitle(rolloutID domain.RolloutID, phaseNumber int, stalledFor time.Duration) (string, string) {
	return "Rollout phase stalled", fmt.Sprintf("Rollout %s phase %d has been InProgress since %s without completing.", rolloutID, phaseNumber, humanize.Time(time.Now().Add(-stalledFor)))
}

func HighFailureRateTitle(rolloutID domain.RolloutID, phaseNumber int, failureRate, threshold float64) (string, string) {
	return "Rollout failure rate elevated", fmt.Sprintf("Rollout %s phase %d failure rate %.1f%% has crossed half of its %.1f%% threshold.", rolloutID, phaseNumber, failureRate*100, threshold*100)
}
