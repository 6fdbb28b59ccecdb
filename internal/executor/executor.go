// Package executor implements the Rollout Executor: the
// control loop that drives every non-terminal rollout through its phase
// state machine, advancing on health, rolling back on failure-threshold
// breach, and honoring pause/resume/cancel/retry actions.
package executor

import (
	"context"
	"time"

	"github.com/signalbeam/signalbeam/internal/alertengine"
	"github.com/signalbeam/signalbeam/internal/desiredstate"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"github.com/signalbeam/signalbeam/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Executor drives rollouts through their state machine. One Executor serves
// every tenant (each call names its tenant); internal/executor/scheduler.go
// fans one tenant's ticks across shards.
type Executor struct {
	store      Store
	bundles    BundleSource
	index      *desiredstate.Index
	alerts     *alertengine.Engine
	log        logrus.FieldLogger
	maxRetry   int
	heartbeat  time.Duration
	stallAfter time.Duration
	metrics    *metrics.Collector
}

func New(store Store, bundles BundleSource, index *desiredstate.Index, alerts *alertengine.Engine, log logrus.FieldLogger) *Executor {
	return &Executor{
		store:      store,
		bundles:    bundles,
		index:      index,
		alerts:     alerts,
		log:        log,
		maxRetry:   MaxAssignmentRetries,
		heartbeat:  HeartbeatDeadline,
		stallAfter: StallAlertAfter,
	}
}

// WithMetrics attaches a Collector that ReconcileTick records duration and
// outcome counters into. Safe to leave unset; all recording is nil-checked.
func (e *Executor) WithMetrics(m *metrics.Collector) *Executor {
	e.metrics = m
	return e
}

// WithLimits overrides the compiled-in retry/heartbeat/stall defaults with
// the configured values. Zero values keep the corresponding default.
func (e *Executor) WithLimits(maxRetries int, heartbeat, stallAfter time.Duration) *Executor {
	if maxRetries > 0 {
		e.maxRetry = maxRetries
	}
	if heartbeat > 0 {
		e.heartbeat = heartbeat
	}
	if stallAfter > 0 {
		e.stallAfter = stallAfter
	}
	return e
}

// withRetry runs fn against a freshly loaded rollout, retrying from scratch
// on an OCC conflict up to MaxTickOCCRetries times. fn mutates
// rollout in place and returns the outbox rows to persist alongside it, or
// (nil, nil) if nothing changed and no save is needed.
func (e *Executor) withRetry(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID, fn func(*domain.Rollout) ([]events.OutboxEvent, error)) error {
	var lastErr error
	for attempt := 0; attempt < MaxTickOCCRetries; attempt++ {
		rollout, err := e.store.LoadRollout(ctx, tenant, rolloutID)
		if err != nil {
			return domain.NewTransientError(err, "loading rollout %s", rolloutID)
		}
		if rollout == nil {
			return domain.NewNotFoundError("rollout %s not found", rolloutID)
		}

		expectedVersion := rollout.Version
		outbox, err := fn(rollout)
		if err != nil {
			return err
		}
		if outbox == nil {
			return nil
		}

		if err := e.store.SaveRollout(ctx, rollout, expectedVersion, outbox); err != nil {
			if domain.IsKind(err, domain.KindConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return domain.NewConflictError("rollout %s: exceeded %d OCC retries: %v", rolloutID, MaxTickOCCRetries, lastErr)
}

// ReconcileTick implements the periodic per-rollout phase-advance algorithm.
// It is a no-op on a Paused or terminal rollout.
func (e *Executor) ReconcileTick(ctx context.Context, tenant domain.TenantID, rolloutID domain.RolloutID) error {
	start := time.Now()
	outcome := "noop"
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveTick(outcome, time.Since(start).Seconds())
		}
	}()

	return e.withRetry(ctx, tenant, rolloutID, func(rollout *domain.Rollout) ([]events.OutboxEvent, error) {
		if rollout.Status != domain.RolloutStatusInProgress {
			return nil, nil
		}

		phase := rollout.CurrentPhase()
		if phase == nil {
			return nil, domain.NewFatalError(nil, "rollout %s has no current phase while InProgress", rollout.RolloutID)
		}

		now := time.Now().UTC()
		expired := e.expireStaleAssignments(phase, now)

		if phase.FailureRate() > rollout.FailureThreshold {
			outcome = "rolled_back"
			return e.doRollback(ctx, rollout, domain.RollbackReasonAutoThresholdBreach, now)
		}

		e.checkHighFailureRate(ctx, rollout, phase)

		if !readyToAdvance(phase, rollout.FailureThreshold, now) {
			e.checkStall(ctx, rollout, phase, now)
			if expired {
				outcome = "heartbeat_expired"
				return []events.OutboxEvent{}, nil
			}
			return nil, nil
		}

		outcome = "advanced"
		return e.advancePhase(ctx, rollout, phase, now)
	})
}

// readyToAdvance implements ReadyToAdvance predicate.
func readyToAdvance(phase *domain.RolloutPhase, threshold float64, now time.Time) bool {
	if phase.ReportedTerminal() != len(phase.DeviceAssignments) {
		return false
	}
	if phase.FailureRate() > threshold {
		return false
	}
	if phase.MinHealthyDuration != nil {
		if phase.StartedAt == nil || now.Sub(*phase.StartedAt) < *phase.MinHealthyDuration {
			return false
		}
	}
	return true
}

// checkStall raises a RolloutStalled alert (a side effect, not rollout
// state) when the current phase has been InProgress longer than stallAfter.
func (e *Executor) checkStall(ctx context.Context, rollout *domain.Rollout, phase *domain.RolloutPhase, now time.Time) {
	if phase.StartedAt == nil || now.Sub(*phase.StartedAt) < e.stallAfter {
		return
	}
	title, desc := alertengine.RolloutStalledTitle(rollout.RolloutID, phase.PhaseNumber, now.Sub(*phase.StartedAt))
	key := alertengine.RolloutKey(rollout.TenantID, domain.AlertTypeRolloutStalled, rollout.RolloutID)
	if _, err := e.alerts.Raise(ctx, key, domain.AlertSeverityWarning, title, desc, &rollout.RolloutID, nil); err != nil {
		e.log.WithError(err).Warn("failed to raise RolloutStalled alert")
	} else if e.metrics != nil {
		e.metrics.RecordAlert(string(domain.AlertTypeRolloutStalled))
	}
}

// checkHighFailureRate raises a HighFailureRate alert once a
// phase's failure rate crosses half the rollout's failure threshold, ahead
// of the full threshold that would trigger auto-rollback.
func (e *Executor) checkHighFailureRate(ctx context.Context, rollout *domain.Rollout, phase *domain.RolloutPhase) {
	half := rollout.FailureThreshold / 2
	if half <= 0 || phase.FailureRate() < half {
		return
	}
	title, desc := alertengine.HighFailureRateTitle(rollout.RolloutID, phase.PhaseNumber, phase.FailureRate(), rollout.FailureThreshold)
	key := alertengine.RolloutKey(rollout.TenantID, domain.AlertTypeHighFailureRate, rollout.RolloutID)
	if _, err := e.alerts.Raise(ctx, key, domain.AlertSeverityWarning, title, desc, &rollout.RolloutID, nil); err != nil {
		e.log.WithError(err).Warn("failed to raise HighFailureRate alert")
	} else if e.metrics != nil {
		e.metrics.RecordAlert(string(domain.AlertTypeHighFailureRate))
	}
}

// expireStaleAssignments marks Reconciling/Assigned assignments Failed once
// they miss the heartbeat deadline, and reports whether it
// changed anything the caller must persist.
func (e *Executor) expireStaleAssignments(phase *domain.RolloutPhase, now time.Time) bool {
	changed := false
	for i := range phase.DeviceAssignments {
		a := &phase.DeviceAssignments[i]
		if a.Status != domain.AssignmentStatusReconciling && a.Status != domain.AssignmentStatusAssigned {
			continue
		}
		lastContact := a.AssignedAt
		if a.ReconciledAt != nil {
			lastContact = a.ReconciledAt
		}
		if lastContact == nil || now.Sub(*lastContact) < e.heartbeat {
			continue
		}
		a.Status = domain.AssignmentStatusFailed
		a.ErrorMessage = "heartbeat deadline exceeded"
		phase.FailureCount++
		changed = true
	}
	return changed
}

// advancePhase completes the current phase and either marks the rollout
// Completed or starts the next phase's assignments.
func (e *Executor) advancePhase(ctx context.Context, rollout *domain.Rollout, phase *domain.RolloutPhase, now time.Time) ([]events.OutboxEvent, error) {
	phase.Status = domain.PhaseStatusCompleted
	phase.CompletedAt = &now

	completedPhase := phase.PhaseNumber
	if completedPhase == len(rollout.Phases) {
		rollout.Status = domain.RolloutStatusCompleted
		rollout.CompletedAt = &now

		evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectRolloutCompleted, events.RolloutCompleted{
			RolloutID:   rollout.RolloutID,
			TenantID:    rollout.TenantID,
			CompletedAt: now,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling RolloutCompleted event")
		}
		e.log.WithFields(logrus.Fields{"rollout_id": rollout.RolloutID, "tenant_id": rollout.TenantID}).Info("rollout completed")
		if e.metrics != nil {
			e.metrics.RolloutCompleted.Inc()
		}
		return []events.OutboxEvent{evt}, nil
	}

	rollout.CurrentPhaseNumber++
	next := rollout.CurrentPhase()
	next.Status = domain.PhaseStatusInProgress
	next.StartedAt = &now

	assignEvents, err := e.beginPhaseAssignments(ctx, rollout, next, now)
	if err != nil {
		return nil, err
	}

	evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectRolloutPhaseAdvanced, events.RolloutPhaseAdvanced{
		RolloutID:        rollout.RolloutID,
		TenantID:         rollout.TenantID,
		CompletedPhase:   completedPhase,
		NextPhase:        next.PhaseNumber,
		NextPhaseDevices: next.TargetDeviceCount,
		AdvancedAt:       now,
	})
	if err != nil {
		return nil, domain.NewFatalError(err, "marshaling RolloutPhaseAdvanced event")
	}

	e.log.WithFields(logrus.Fields{
		"rollout_id":      rollout.RolloutID,
		"completed_phase": completedPhase,
		"next_phase":      next.PhaseNumber,
	}).Info("rollout phase advanced")

	if e.metrics != nil {
		e.metrics.PhaseAdvances.Inc()
	}
	return append(assignEvents, evt), nil
}

// beginPhaseAssignments writes the Desired-State Index for every device in
// phase, marks each assignment Assigned, and returns one
// device.desired-state-changed event per device for the caller's outbox.
func (e *Executor) beginPhaseAssignments(ctx context.Context, rollout *domain.Rollout, phase *domain.RolloutPhase, now time.Time) ([]events.OutboxEvent, error) {
	version, err := e.bundles.GetBundleVersion(ctx, rollout.TenantID, rollout.BundleID, rollout.TargetVersion)
	if err != nil {
		return nil, domain.NewTransientError(err, "loading bundle version %s/%s", rollout.BundleID, rollout.TargetVersion)
	}
	if version == nil {
		return nil, domain.NewFatalError(nil, "bundle version %s/%s vanished mid-rollout", rollout.BundleID, rollout.TargetVersion)
	}

	out := make([]events.OutboxEvent, 0, len(phase.DeviceAssignments))
	for i := range phase.DeviceAssignments {
		a := &phase.DeviceAssignments[i]
		if err := e.index.Assign(ctx, rollout.TenantID, a.DeviceID, rollout.BundleID, rollout.TargetVersion,
			version.BlobURI, version.Checksum, version.SizeBytes, "executor"); err != nil {
			return nil, err
		}
		a.Status = domain.AssignmentStatusAssigned
		a.AssignedAt = &now

		evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectDeviceDesiredState, events.DeviceDesiredStateChanged{
			DeviceID:   a.DeviceID,
			TenantID:   rollout.TenantID,
			BundleID:   &rollout.BundleID,
			Version:    &rollout.TargetVersion,
			AssignedAt: now,
		})
		if err != nil {
			return nil, domain.NewFatalError(err, "marshaling DeviceDesiredStateChanged event")
		}
		out = append(out, evt)
	}
	return out, nil
}

// doRollback transitions rollout to RolledBack, resetting the desired state
// of every device that had reached Assigned or beyond.
func (e *Executor) doRollback(ctx context.Context, rollout *domain.Rollout, reason domain.RollbackReason, now time.Time) ([]events.OutboxEvent, error) {
	rollout.Status = domain.RolloutStatusRolledBack
	rollout.CompletedAt = &now

	var outbox []events.OutboxEvent
	for p := range rollout.Phases {
		phase := &rollout.Phases[p]
		for a := range phase.DeviceAssignments {
			assignment := &phase.DeviceAssignments[a]
			switch assignment.Status {
			case domain.AssignmentStatusAssigned, domain.AssignmentStatusReconciling, domain.AssignmentStatusSucceeded, domain.AssignmentStatusFailed:
				// Every device that was handed targetVersion gets its
				// desired state reset, including the failed ones.
				changed, err := e.resetDesiredState(ctx, rollout, assignment.DeviceID, now)
				if err != nil {
					return nil, err
				}
				outbox = append(outbox, changed)
				if assignment.Status == domain.AssignmentStatusAssigned || assignment.Status == domain.AssignmentStatusReconciling {
					assignment.Status = domain.AssignmentStatusSkipped
				}
			}
		}
		if phase.Status == domain.PhaseStatusInProgress {
			phase.Status = domain.PhaseStatusFailed
			phase.CompletedAt = &now
		}
	}

	evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectRolloutRolledBack, events.RolloutRolledBack{
		RolloutID:  rollout.RolloutID,
		TenantID:   rollout.TenantID,
		Reason:     reason,
		RolledBack: now,
	})
	if err != nil {
		return nil, domain.NewFatalError(err, "marshaling RolloutRolledBack event")
	}

	title, desc := alertengine.RolloutFailedTitle(rollout.RolloutID)
	key := alertengine.RolloutKey(rollout.TenantID, domain.AlertTypeRolloutFailed, rollout.RolloutID)
	if _, alertErr := e.alerts.Raise(ctx, key, domain.AlertSeverityCritical, title, desc, &rollout.RolloutID, nil); alertErr != nil {
		e.log.WithError(alertErr).Warn("failed to raise RolloutFailed alert")
	} else if e.metrics != nil {
		e.metrics.RecordAlert(string(domain.AlertTypeRolloutFailed))
	}

	e.log.WithFields(logrus.Fields{
		"rollout_id": rollout.RolloutID,
		"tenant_id":  rollout.TenantID,
		"reason":     reason,
	}).Warn("rollout rolled back")

	if e.metrics != nil {
		e.metrics.RecordRollback(string(reason))
	}
	return append(outbox, evt), nil
}

// resetDesiredState writes rollout.PreviousVersion for device, or clears
// its desired state entirely if there is no previous version to fall back
// to, returning the device.desired-state-changed event describing the reset.
func (e *Executor) resetDesiredState(ctx context.Context, rollout *domain.Rollout, device domain.DeviceID, now time.Time) (events.OutboxEvent, error) {
	payload := events.DeviceDesiredStateChanged{
		DeviceID:   device,
		TenantID:   rollout.TenantID,
		AssignedAt: now,
	}

	reset := func() error {
		if !rollout.HasPreviousVersion() {
			return e.index.Clear(ctx, rollout.TenantID, device, "executor")
		}
		prev, err := e.bundles.GetBundleVersion(ctx, rollout.TenantID, rollout.BundleID, rollout.PreviousVersion)
		if err != nil {
			return domain.NewTransientError(err, "loading previous bundle version %s/%s", rollout.BundleID, rollout.PreviousVersion)
		}
		if prev == nil {
			return e.index.Clear(ctx, rollout.TenantID, device, "executor")
		}
		payload.BundleID = &rollout.BundleID
		payload.Version = &rollout.PreviousVersion
		return e.index.Assign(ctx, rollout.TenantID, device, rollout.BundleID, rollout.PreviousVersion, prev.BlobURI, prev.Checksum, prev.SizeBytes, "executor")
	}
	if err := reset(); err != nil {
		return events.OutboxEvent{}, err
	}

	evt, err := events.NewOutboxEvent(rollout.TenantID, events.SubjectDeviceDesiredState, payload)
	if err != nil {
		return events.OutboxEvent{}, domain.NewFatalError(err, "marshaling DeviceDesiredStateChanged event")
	}
	return evt, nil
}
