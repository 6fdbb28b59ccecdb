// Package events defines the bus payload types and subjects emitted by the
// Phased Rollout Engine and the transactional-outbox row type
// used to deliver them at-least-once.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/domain"
)

// Subject names match bus event list exactly.
const (
	SubjectRolloutCreated       = "rollout.created"
	SubjectRolloutStarted       = "rollout.started"
	SubjectRolloutPhaseAdvanced = "rollout.phase-advanced"
	SubjectRolloutCompleted     = "rollout.completed"
	SubjectRolloutRolledBack    = "rollout.rolled-back"
	SubjectRolloutFailed        = "rollout.failed"
	SubjectDeviceDesiredState   = "device.desired-state-changed"
	SubjectDeviceReportedState  = "device.reported-state"
	SubjectAlertRaised          = "alert.raised"
	SubjectAlertAcknowledged    = "alert.acknowledged"
	SubjectAlertResolved        = "alert.resolved"
)

// RolloutCreated is the payload for rollout.created.
type RolloutCreated struct {
	RolloutID     domain.RolloutID `json:"rolloutId"`
	TenantID      domain.TenantID  `json:"tenantId"`
	BundleID      domain.BundleID  `json:"bundleId"`
	TargetVersion string           `json:"version"`
	DeviceCount   int              `json:"deviceCount"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// RolloutStarted is the payload for rollout.started.
type RolloutStarted struct {
	RolloutID domain.RolloutID `json:"rolloutId"`
	TenantID  domain.TenantID  `json:"tenantId"`
	StartedAt time.Time        `json:"startedAt"`
}

// RolloutPhaseAdvanced is the payload for rollout.phase-advanced.
type RolloutPhaseAdvanced struct {
	RolloutID        domain.RolloutID `json:"rolloutId"`
	TenantID         domain.TenantID  `json:"tenantId"`
	CompletedPhase   int              `json:"completedPhase"`
	NextPhase        int              `json:"nextPhase"`
	NextPhaseDevices int              `json:"nextPhaseDevices"`
	AdvancedAt       time.Time        `json:"advancedAt"`
}

// RolloutCompleted is the payload for rollout.completed.
type RolloutCompleted struct {
	RolloutID   domain.RolloutID `json:"rolloutId"`
	TenantID    domain.TenantID  `json:"tenantId"`
	CompletedAt time.Time        `json:"completedAt"`
}

// RolloutRolledBack is the payload for rollout.rolled-back.
type RolloutRolledBack struct {
	RolloutID  domain.RolloutID      `json:"rolloutId"`
	TenantID   domain.TenantID       `json:"tenantId"`
	Reason     domain.RollbackReason `json:"reason"`
	RolledBack time.Time             `json:"rolledBackAt"`
}

// RolloutFailed is the payload for rollout.failed.
type RolloutFailed struct {
	RolloutID domain.RolloutID `json:"rolloutId"`
	TenantID  domain.TenantID  `json:"tenantId"`
	Reason    string           `json:"reason"`
	FailedAt  time.Time        `json:"failedAt"`
}

// DeviceDesiredStateChanged is the payload for device.desired-state-changed.
type DeviceDesiredStateChanged struct {
	DeviceID   domain.DeviceID  `json:"deviceId"`
	TenantID   domain.TenantID  `json:"tenantId"`
	BundleID   *domain.BundleID `json:"bundleId,omitempty"`
	Version    *string          `json:"version,omitempty"`
	AssignedAt time.Time        `json:"assignedAt"`
}

// DeviceReportedState is the payload for device.reported-state, mirroring
// the agent report ingress shape
type DeviceReportedState struct {
	DeviceID         domain.DeviceID         `json:"deviceId"`
	TenantID         domain.TenantID         `json:"tenantId"`
	Timestamp        time.Time               `json:"timestamp"`
	DeploymentStatus domain.DeploymentStatus `json:"deploymentStatus"`
}

// AlertRaised is the payload for alert.raised.
type AlertRaised struct {
	AlertID   uuid.UUID            `json:"alertId"`
	TenantID  domain.TenantID      `json:"tenantId"`
	Type      domain.AlertType     `json:"type"`
	Severity  domain.AlertSeverity `json:"severity"`
	Title     string               `json:"title"`
	RolloutID *domain.RolloutID    `json:"rolloutId,omitempty"`
	DeviceID  *domain.DeviceID     `json:"deviceId,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
}

// AlertStatusChanged is the payload for alert.acknowledged and
// alert.resolved.
type AlertStatusChanged struct {
	AlertID  uuid.UUID          `json:"alertId"`
	TenantID domain.TenantID    `json:"tenantId"`
	Status   domain.AlertStatus `json:"status"`
	By       string             `json:"by,omitempty"`
	At       time.Time          `json:"at"`
}

// OutboxEvent is one row of the transactional outbox table: it
// is written in the same DB transaction as the state change that produced
// it, then relayed to the bus at-least-once by a separate process.
type OutboxEvent struct {
	ID          uint64
	TenantID    domain.TenantID
	Subject     string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewOutboxEvent marshals payload and returns an unpublished OutboxEvent
// row ready to insert alongside the rest of a reconcile tick's writes.
func NewOutboxEvent(tenant domain.TenantID, subject string, payload any) (OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		TenantID: tenant,
		Subject:  subject,
		Payload:  raw,
	}, nil
}
