package executor

import (
	"time"

	"github.com/signalbeam/signalbeam/internal/domain"
)

// AgentReport is the agent-report ingress shape
type AgentReport struct {
	DeviceID            domain.DeviceID         `json:"deviceId"`
	Timestamp           time.Time               `json:"timestamp"`
	CurrentBundleID     *domain.BundleID        `json:"currentBundleId,omitempty"`
	CurrentVersion      *string                 `json:"currentVersion,omitempty"`
	DeploymentStatus    domain.DeploymentStatus `json:"deploymentStatus"`
	ReconciliationError *string                 `json:"reconciliationError,omitempty"`
	Containers          []ReportedContainer     `json:"containers,omitempty"`
}

// ReportedContainer is one entry of an agent report's containers list.
type ReportedContainer struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	State string `json:"state"`
}

const (
	// MaxAssignmentRetries is assignment.max-retries' default.
	MaxAssignmentRetries = 3
	// HeartbeatDeadline is assignment.heartbeat-deadline's default.
	HeartbeatDeadline = 15 * time.Minute
	// MaxTickOCCRetries bounds the OCC retry-from-scratch loop.
	MaxTickOCCRetries = 5
	// StallAlertAfter is rollout.stall-alert-after's default.
	StallAlertAfter = 24 * time.Hour
)
