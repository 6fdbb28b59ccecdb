package executor

import (
	"github.com/signalbeam/signalbeam/internal/domain"
)

// newTestRollout builds a Pending rollout with len(devicesPerPhase) phases,
// each holding that many Pending assignments, ready for Start. It bypasses
// internal/planner since these tests target the executor's state machine,
// not materialization.
func newTestRollout(tenant domain.TenantID, bundle domain.BundleID, targetVersion, previousVersion string, threshold float64, devicesPerPhase []int) *domain.Rollout {
	rolloutID := domain.NewRolloutID()
	phases := make([]domain.RolloutPhase, len(devicesPerPhase))
	total := 0
	for _, n := range devicesPerPhase {
		total += n
	}
	cumulative := 0
	for i, n := range devicesPerPhase {
		cumulative += n
		assignments := make([]domain.RolloutDeviceAssignment, n)
		for j := 0; j < n; j++ {
			assignments[j] = domain.RolloutDeviceAssignment{
				AssignmentID: domain.NewAssignmentID(),
				RolloutID:    rolloutID,
				DeviceID:     domain.NewDeviceID(),
				Status:       domain.AssignmentStatusPending,
			}
		}
		phases[i] = domain.RolloutPhase{
			PhaseID:           domain.NewPhaseID(),
			RolloutID:         rolloutID,
			PhaseNumber:       i + 1,
			Name:              "phase",
			TargetDeviceCount: n,
			TargetPercentage:  float64(cumulative) / float64(total),
			Status:            domain.PhaseStatusPending,
			DeviceAssignments: assignments,
		}
	}
	return &domain.Rollout{
		RolloutID:        rolloutID,
		TenantID:         tenant,
		BundleID:         bundle,
		TargetVersion:    targetVersion,
		PreviousVersion:  previousVersion,
		Status:           domain.RolloutStatusPending,
		Name:             "test rollout",
		FailureThreshold: threshold,
		Phases:           phases,
		Version:          1,
	}
}

// succeedAssignments reports every assignment in phase as Succeeded.
func succeedAssignments(phase *domain.RolloutPhase) {
	for i := range phase.DeviceAssignments {
		phase.DeviceAssignments[i].Status = domain.AssignmentStatusSucceeded
	}
	phase.SuccessCount = len(phase.DeviceAssignments)
}
