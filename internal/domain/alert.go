package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity ranks how urgently an alert needs operator attention.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "Info"
	AlertSeverityWarning  AlertSeverity = "Warning"
	AlertSeverityCritical AlertSeverity = "Critical"
)

// AlertType enumerates the rollout-relevant alert signals.
type AlertType string

const (
	AlertTypeRolloutFailed   AlertType = "RolloutFailed"
	AlertTypeRolloutStalled  AlertType = "RolloutStalled"
	AlertTypeHighFailureRate AlertType = "HighFailureRate"
)

// AlertStatus is the lifecycle state of an Alert.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "Active"
	AlertStatusAcknowledged AlertStatus = "Acknowledged"
	AlertStatusResolved     AlertStatus = "Resolved"
)

// RollbackReason enumerates why a rollout rolled back.
type RollbackReason string

const (
	RollbackReasonManual              RollbackReason = "Manual"
	RollbackReasonAutoThresholdBreach RollbackReason = "AutoThresholdBreach"
	RollbackReasonCancelled           RollbackReason = "Cancelled"
)

// Alert is a structured record emitted in response to rollout-produced
// signals.
type Alert struct {
	ID          uuid.UUID
	TenantID    TenantID
	Severity    AlertSeverity
	Type        AlertType
	Title       string
	Description string
	DeviceID    *DeviceID
	RolloutID   *RolloutID
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Status      AlertStatus
	AckBy       string
	AckAt       *time.Time
	ResolvedAt  *time.Time
}
