package domain

import "time"

// RolloutStatus is the top-level state of a Rollout.
type RolloutStatus string

const (
	RolloutStatusPending    RolloutStatus = "Pending"
	RolloutStatusInProgress RolloutStatus = "InProgress"
	RolloutStatusPaused     RolloutStatus = "Paused"
	RolloutStatusCompleted  RolloutStatus = "Completed"
	RolloutStatusRolledBack RolloutStatus = "RolledBack"
	RolloutStatusFailed     RolloutStatus = "Failed"
)

// IsTerminal reports whether s is one of the sticky terminal states.
func (s RolloutStatus) IsTerminal() bool {
	switch s {
	case RolloutStatusCompleted, RolloutStatusRolledBack, RolloutStatusFailed:
		return true
	default:
		return false
	}
}

// PhaseStatus is the state of a single RolloutPhase.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "Pending"
	PhaseStatusInProgress PhaseStatus = "InProgress"
	PhaseStatusCompleted  PhaseStatus = "Completed"
	PhaseStatusFailed     PhaseStatus = "Failed"
	PhaseStatusSkipped    PhaseStatus = "Skipped"
)

// AssignmentStatus is the per-device state within a phase.
type AssignmentStatus string

const (
	AssignmentStatusPending     AssignmentStatus = "Pending"
	AssignmentStatusAssigned    AssignmentStatus = "Assigned"
	AssignmentStatusReconciling AssignmentStatus = "Reconciling"
	AssignmentStatusSucceeded   AssignmentStatus = "Succeeded"
	AssignmentStatusFailed      AssignmentStatus = "Failed"
	AssignmentStatusSkipped     AssignmentStatus = "Skipped"
)

// IsTerminal reports whether the assignment is in one of the per-device
// terminal states a ReadyToAdvance check requires.
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case AssignmentStatusSucceeded, AssignmentStatusFailed, AssignmentStatusSkipped:
		return true
	default:
		return false
	}
}

// SelectorKind distinguishes the four forms a CreatePhasedRollout target
// selector can take.
type SelectorKind string

const (
	SelectorAllDevices SelectorKind = "AllDevices"
	SelectorGroupID    SelectorKind = "GroupId"
	SelectorTagQuery   SelectorKind = "TagQuery"
	SelectorDeviceIDs  SelectorKind = "DeviceIds"
)

// TargetSelector is the tagged union of how a rollout's target device set is
// expressed: AllDevices, a GroupId, a TagQuery expression, or a literal
// DeviceIds list. Go has no sum types, so this follows a discriminated-struct
// idiom: exactly one of the kind-specific fields is populated, gated by Kind.
type TargetSelector struct {
	Kind      SelectorKind
	GroupID   GroupID
	TagQuery  string
	DeviceIDs []DeviceID
}

func AllDevicesSelector() TargetSelector { return TargetSelector{Kind: SelectorAllDevices} }
func GroupSelector(id GroupID) TargetSelector {
	return TargetSelector{Kind: SelectorGroupID, GroupID: id}
}
func TagQuerySelector(expr string) TargetSelector {
	return TargetSelector{Kind: SelectorTagQuery, TagQuery: expr}
}
func DeviceIDsSelector(ids []DeviceID) TargetSelector {
	return TargetSelector{Kind: SelectorDeviceIDs, DeviceIDs: ids}
}

// PhasePlan is one entry of a CreatePhasedRollout request's phase list,
// before materialization into a RolloutPhase.
type PhasePlan struct {
	Name               string
	TargetPercentage   float64
	MinHealthyDuration *time.Duration
}

// RolloutPhase is one contiguous slice of the rollout's target devices,
// advanced as a unit gated on health.
type RolloutPhase struct {
	PhaseID            PhaseID
	RolloutID          RolloutID
	PhaseNumber        int // 1-indexed, matches rollout.currentPhaseNumber
	Name               string
	TargetDeviceCount  int
	TargetPercentage   float64
	Status             PhaseStatus
	StartedAt          *time.Time
	CompletedAt        *time.Time
	SuccessCount       int
	FailureCount       int
	MinHealthyDuration *time.Duration
	DeviceAssignments  []RolloutDeviceAssignment
}

// ReportedTerminal returns the count of assignments that have reached a
// terminal per-device state.
func (p *RolloutPhase) ReportedTerminal() int {
	n := 0
	for _, a := range p.DeviceAssignments {
		if a.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// FailureRate computes failureCount / max(1, successCount+failureCount).
func (p *RolloutPhase) FailureRate() float64 {
	denom := p.SuccessCount + p.FailureCount
	if denom == 0 {
		denom = 1
	}
	return float64(p.FailureCount) / float64(denom)
}

// RolloutDeviceAssignment is a single device's participation record within
// one rollout phase.
type RolloutDeviceAssignment struct {
	AssignmentID AssignmentID
	RolloutID    RolloutID
	PhaseID      PhaseID
	DeviceID     DeviceID
	Status       AssignmentStatus
	AssignedAt   *time.Time
	ReconciledAt *time.Time
	ErrorMessage string
	RetryCount   int
}

// Rollout is the central aggregate: a controlled, phased deployment of one
// bundle version to a set of devices.
type Rollout struct {
	RolloutID          RolloutID
	TenantID           TenantID
	BundleID           BundleID
	TargetVersion      string
	PreviousVersion    string // empty means "no previous version"
	Status             RolloutStatus
	Name               string
	Description        string
	CreatedBy          string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	FailureThreshold   float64
	CurrentPhaseNumber int
	Phases             []RolloutPhase
	Version            int // optimistic-concurrency counter
}

// CurrentPhase returns the active phase, or nil if the rollout has not
// started (CurrentPhaseNumber == 0) or has completed
// (CurrentPhaseNumber == len(Phases)+1).
func (r *Rollout) CurrentPhase() *RolloutPhase {
	if r.CurrentPhaseNumber < 1 || r.CurrentPhaseNumber > len(r.Phases) {
		return nil
	}
	return &r.Phases[r.CurrentPhaseNumber-1]
}

// HasPreviousVersion reports whether a rollback target version is set.
func (r *Rollout) HasPreviousVersion() bool { return r.PreviousVersion != "" }
