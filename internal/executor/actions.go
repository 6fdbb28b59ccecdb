package executor

import (
	"time"

	"context"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
)

// Start implements the Pending -> InProgress transition,
// guarded on currentPhaseNumber == 0.
func (e *Executor) Start(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status != domain.RolloutStatusPending {
			return nil, domain.NewValidationError("rollout %s is not Pending (status=%s)", rollout.RolloutID, rollout.Status)
		}
		if rollout.CurrentPhaseNumber != 0 {
			return nil, domain.NewFatalError(nil, "rollout %s is Pending but currentPhaseNumber=%d", rollout.RolloutID, rollout.CurrentPhaseNumber)
		}

		now := time.Now().UTC()
		rollout.Status = domain.RolloutStatusInProgress
		rollout.StartedAt = &now
		rollout.CurrentPhaseNumber = 1

		first := rollout.CurrentPhase()
		first.Status = domain.PhaseStatusInProgress
		first.StartedAt = &now
		assignEvents, err := e.beginPhaseAssignments(ctx, rollout, first, now)
		if err != nil {
			return nil, err
		}

		evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectRolloutStarted, events.RolloutStarted{
			RolloutID: rollout.RolloutID,
			TenantID:  rollout.TenantID,
			StartedAt: now,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling RolloutStarted event")
		}
		return append(assignEvents, evt), nil
	})
}

// Pause implements InProgress -> Paused. In-flight assignments continue to
// process reports; only phase advancement stops.
func (e *Executor) Pause(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status != domain.RolloutStatusInProgress {
			return nil, domain.NewValidationError("rollout %s is not InProgress (status=%s)", rollout.RolloutID, rollout.Status)
		}
		rollout.Status = domain.RolloutStatusPaused
		return []events.OutboxEvent{}, nil
	})
}

// Resume implements Paused -> InProgress and then runs a ReconcileTick
// itself, so the rollout is reconciled immediately.
func (e *Executor) Resume(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	err := e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status != domain.RolloutStatusPaused {
			return nil, domain.NewValidationError("rollout %s is not Paused (status=%s)", rollout.RolloutID, rollout.Status)
		}
		rollout.Status = domain.RolloutStatusInProgress
		return []events.OutboxEvent{}, nil
	})
	if err != nil {
		return err
	}
	return e.ReconcileTick(ctx, tenant, rolloutID)
}

// Rollback implements a manually requested rollback, reusing the same
// semantics auto-rollback uses.
func (e *Executor) Rollback(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status.IsTerminal() {
			return nil, domain.NewValidationError("rollout %s is already terminal (status=%s)", rollout.RolloutID, rollout.Status)
		}
		return e.doRollback(ctx, rollout, domain.RollbackReasonManual, time.Now().UTC())
	})
}

// Cancel implements the Cancel transition from any non-terminal state to
// Failed; non-terminal phases and their pending assignments are marked
// Skipped. Unlike Rollback, Cancel does not reset the
// Desired-State Index: reset is specific to Rollback.
func (e *Executor) Cancel(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status.IsTerminal() {
			return nil, domain.NewValidationError("rollout %s is already terminal (status=%s)", rollout.RolloutID, rollout.Status)
		}

		now := time.Now().UTC()
		rollout.Status = domain.RolloutStatusFailed
		rollout.CompletedAt = &now

		for p := range rollout.Phases {
			phase := &rollout.Phases[p]
			if phase.Status == domain.PhaseStatusPending || phase.Status == domain.PhaseStatusInProgress {
				phase.Status = domain.PhaseStatusSkipped
				phase.CompletedAt = &now
			}
			for a := range phase.DeviceAssignments {
				assignment := &phase.DeviceAssignments[a]
				if !assignment.Status.IsTerminal() {
					assignment.Status = domain.AssignmentStatusSkipped
				}
			}
		}

		evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectRolloutFailed, events.RolloutFailed{
			RolloutID: rollout.RolloutID,
			TenantID:  rollout.TenantID,
			Reason:    string(domain.RollbackReasonCancelled),
			FailedAt:  now,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling RolloutFailed event")
		}
		return []events.OutboxEvent{evt}, nil
	})
}

// RetryFailed implements the Failed -> Reconciling retry action: it resets the assignment's transient state, increments
// retryCount, and re-writes the desired state.
func (e *Executor) RetryFailed(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID, device domain.DeviceID) error {
	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		phase, assignment := findAssignment(rollout, device)
		if assignment == nil {
			return nil, domain.NewNotFoundError("device %s has no assignment in rollout %s", device, rolloutID)
		}
		if assignment.Status != domain.AssignmentStatusFailed {
			return nil, domain.NewValidationError("device %s assignment is not Failed (status=%s)", device, assignment.Status)
		}
		if assignment.RetryCount >= e.maxRetry {
			return nil, domain.NewValidationError("device %s exhausted its %d retries", device, e.maxRetry)
		}

		now := time.Now().UTC()
		version, err := e.bundles.GetBundleVersion(ctx, rollout.TenantID, rollout.BundleID, rollout.TargetVersion)
		if err != nil {
			return nil, domain.NewTransientError(err, "loading bundle version %s/%s", rollout.BundleID, rollout.TargetVersion)
		}
		if version == nil {
			return nil, domain.NewFatalError(nil, "bundle version %s/%s vanished mid-rollout", rollout.BundleID, rollout.TargetVersion)
		}
		if err := e.index.Assign(ctx, rollout.TenantID, device, rollout.BundleID, rollout.TargetVersion,
			version.BlobURI, version.Checksum, version.SizeBytes, "executor"); err != nil {
			return nil, err
		}

		assignment.RetryCount++
		assignment.Status = domain.AssignmentStatusReconciling
		assignment.ErrorMessage = ""
		assignment.ReconciledAt = &now
		phase.FailureCount--

		evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectDeviceDesiredState, events.DeviceDesiredStateChanged{
			DeviceID:   device,
			TenantID:   rollout.TenantID,
			BundleID:   &rollout.BundleID,
			Version:    &rollout.TargetVersion,
			AssignedAt: now,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling DeviceDesiredStateChanged event")
		}
		return []events.OutboxEvent{evt}, nil
	})
}

// ReportDeviceState ingests an agent report and applies the per-assignment
// state machine. Unlike ReconcileTick, it runs regardless of the rollout's
// Paused status (per-device ticks are always allowed), and wakes an
// immediate ReconcileTick if the rollout is not paused.
func (e *Executor) ReportDeviceState(ctx context.Context, tenant domain.TenantID, report AgentReport) error {
	if err := e.index.RecordReportedStatus(ctx, tenant, report.DeviceID, report.DeploymentStatus); err != nil {
		return err
	}

	rolloutID, err := e.store.FindActiveRolloutForDevice(ctx, tenant, report.DeviceID)
	if err != nil {
		return domain.NewTransientError(err, "finding active rollout for device %s", report.DeviceID)
	}
	if rolloutID == nil {
		return nil
	}

	var wasPaused bool
	err = e.withRetry(ctx, tenant, *rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		wasPaused = rollout.Status == domain.RolloutStatusPaused
		phase, assignment := findAssignment(rollout, report.DeviceID)
		if assignment == nil {
			return nil, nil
		}
		if !applyReport(rollout, phase, assignment, report) {
			return nil, nil
		}

		evt, err := events.NewOutboxEvent(tenant, events.SubjectDeviceReportedState, events.DeviceReportedState{
			DeviceID:         report.DeviceID,
			TenantID:         tenant,
			Timestamp:        report.Timestamp,
			DeploymentStatus: report.DeploymentStatus,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling DeviceReportedState event")
		}
		return []events.OutboxEvent{evt}, nil
	})
	if err != nil {
		return err
	}

	if !wasPaused {
		return e.ReconcileTick(ctx, tenant, *rolloutID)
	}
	return nil
}

// applyReport mutates assignment according to report and reports
// whether anything changed.
func applyReport(rollout *domain.Rollout, phase *domain.RolloutPhase, assignment *domain.RolloutDeviceAssignment, report AgentReport) bool {
	now := report.Timestamp
	matchesTarget := report.CurrentVersion != nil && *report.CurrentVersion == rollout.TargetVersion

	switch assignment.Status {
	case domain.AssignmentStatusAssigned:
		if matchesTarget {
			assignment.Status = domain.AssignmentStatusReconciling
			assignment.ReconciledAt = &now
			return true
		}
	case domain.AssignmentStatusReconciling:
		assignment.ReconciledAt = &now
		switch {
		case report.DeploymentStatus == domain.DeploymentStatusSucceeded && matchesTarget:
			assignment.Status = domain.AssignmentStatusSucceeded
			phase.SuccessCount++
			return true
		case report.DeploymentStatus == domain.DeploymentStatusFailed:
			assignment.Status = domain.AssignmentStatusFailed
			phase.FailureCount++
			if report.ReconciliationError != nil {
				assignment.ErrorMessage = *report.ReconciliationError
			}
			return true
		}
		return true
	}
	return false
}

func findAssignment(rollout *domain.Rollout, device domain.DeviceID) (*domain.RolloutPhase, *domain.RolloutDeviceAssignment) {
	for p := range rollout.Phases {
		phase := &rollout.Phases[p]
		for a := range phase.DeviceAssignments {
			if phase.DeviceAssignments[a].DeviceID == device {
				return phase, &phase.DeviceAssignments[a]
			}
		}
	}
	return nil, nil
}
