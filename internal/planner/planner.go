// Package planner implements the Rollout Planner: it
// turns a CreatePhasedRollout request into a persisted Rollout with
// materialized phases and device assignments.
package planner

import (
	"context"
	"math"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"github.com/signalbeam/signalbeam/internal/selector"
	"github.com/sirupsen/logrus"
)

const (
	minPhases = 1
	maxPhases = 10
)

// BundleSource validates that a bundle version exists and is Published.
type BundleSource interface {
	GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error)
}

// Store is the persistence boundary the Planner writes through. Writes must
// be atomic across rollout, phases, assignments and the outbox rows.
type Store interface {
	// DeviceInNonTerminalRollout reports whether any of ids already
	// participates in a non-terminal assignment of a different rollout
	// for this tenant, enforcing invariant I5.
	DeviceInNonTerminalRollout(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.DeviceID, error)
	CreateRollout(ctx context.Context, rollout *domain.Rollout, outbox []events.OutboxEvent) error
}

// CreateRolloutRequest is the CreatePhasedRollout input.
type CreateRolloutRequest struct {
	TenantID         domain.TenantID
	BundleID         domain.BundleID
	TargetVersion    string
	PreviousVersion  string
	TargetSelector   domain.TargetSelector
	Phases           []domain.PhasePlan
	FailureThreshold float64
	Name             string
	Description      string
	CreatedBy        string
}

// Planner materializes CreatePhasedRollout requests into persisted Rollout
// aggregates.
type Planner struct {
	store    Store
	bundles  BundleSource
	resolver *selector.Resolver
	log      logrus.FieldLogger
}

func New(store Store, bundles BundleSource, resolver *selector.Resolver, log logrus.FieldLogger) *Planner {
	return &Planner{store: store, bundles: bundles, resolver: resolver, log: log}
}

// CreatePhasedRollout runs the full algorithm: validate,
// expand the target selector, compute per-phase device ranges, and persist
// atomically. Returns a *domain.Error of kind ValidationFailed, NotFound,
// Conflict, Transient or Fatal
func (p *Planner) CreatePhasedRollout(ctx context.Context, req CreateRolloutRequest) (*domain.Rollout, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	version, err := p.bundles.GetBundleVersion(ctx, req.TenantID, req.BundleID, req.TargetVersion)
	if err != nil {
		return nil, domain.NewTransientError(err, "loading bundle version")
	}
	if version == nil {
		return nil, domain.NewNotFoundError("bundle version %s/%s not found", req.BundleID, req.TargetVersion)
	}
	if version.Status != domain.BundleStatusPublished {
		return nil, domain.NewValidationError("bundle version %s/%s is not Published", req.BundleID, req.TargetVersion)
	}

	if req.PreviousVersion != "" {
		prev, err := p.bundles.GetBundleVersion(ctx, req.TenantID, req.BundleID, req.PreviousVersion)
		if err != nil {
			return nil, domain.NewTransientError(err, "loading previous bundle version")
		}
		if prev == nil {
			return nil, domain.NewNotFoundError("previous bundle version %s/%s not found", req.BundleID, req.PreviousVersion)
		}
	}

	targetDevices, err := p.resolver.Expand(ctx, req.TenantID, req.TargetSelector)
	if err != nil {
		return nil, err
	}
	if len(targetDevices) == 0 {
		return nil, domain.NewValidationError("empty target set")
	}

	busy, err := p.store.DeviceInNonTerminalRollout(ctx, req.TenantID, targetDevices)
	if err != nil {
		return nil, domain.NewTransientError(err, "checking device rollout membership")
	}
	if len(busy) > 0 {
		return nil, domain.NewConflictError("%d device(s) already participate in another non-terminal rollout", len(busy))
	}

	rolloutID := domain.NewRolloutID()
	phases, perr := materializePhases(rolloutID, req.Phases, targetDevices)
	if perr != nil {
		return nil, perr
	}

	rollout := &domain.Rollout{
		RolloutID:          rolloutID,
		TenantID:           req.TenantID,
		BundleID:           req.BundleID,
		TargetVersion:      req.TargetVersion,
		PreviousVersion:    req.PreviousVersion,
		Status:             domain.RolloutStatusPending,
		Name:               req.Name,
		Description:        req.Description,
		CreatedBy:          req.CreatedBy,
		CreatedAt:          time.Now().UTC(),
		FailureThreshold:   req.FailureThreshold,
		CurrentPhaseNumber: 0,
		Phases:             phases,
		Version:            0,
	}

	created, err := events.NewOutboxEvent(req.TenantID, events.SubjectRolloutCreated, events.RolloutCreated{
		RolloutID:     rollout.RolloutID,
		TenantID:      rollout.TenantID,
		BundleID:      rollout.BundleID,
		TargetVersion: rollout.TargetVersion,
		DeviceCount:   len(targetDevices),
		CreatedAt:     rollout.CreatedAt,
	})
	if err != nil {
		return nil, domain.NewFatalError(err, "marshaling RolloutCreated event")
	}

	if err := p.store.CreateRollout(ctx, rollout, []events.OutboxEvent{created}); err != nil {
		return nil, domain.NewTransientError(err, "persisting rollout")
	}

	p.log.WithFields(logrus.Fields{
		"rollout_id":    rollout.RolloutID,
		"tenant_id":     rollout.TenantID,
		"device_count":  len(targetDevices),
		"phase_count":   len(phases),
		"target_bundle": rollout.BundleID,
		"bundle_size":   humanize.Bytes(uint64(version.SizeBytes)),
	}).Info("rollout planned")

	return rollout, nil
}

func validateRequest(req CreateRolloutRequest) *domain.Error {
	if !domain.IsValidSemver(req.TargetVersion) {
		return domain.NewValidationError("target version %q is not valid semver", req.TargetVersion)
	}
	if req.PreviousVersion != "" && !domain.IsValidSemver(req.PreviousVersion) {
		return domain.NewValidationError("previous version %q is not valid semver", req.PreviousVersion)
	}
	if len(req.Phases) < minPhases || len(req.Phases) > maxPhases {
		return domain.NewValidationError("phases must have between %d and %d entries, got %d", minPhases, maxPhases, len(req.Phases))
	}
	if req.FailureThreshold < 0 || req.FailureThreshold > 1 {
		return domain.NewValidationError("failureThreshold must be within [0,1], got %v", req.FailureThreshold)
	}

	last := 0.0
	for i, ph := range req.Phases {
		if ph.TargetPercentage <= 0 || ph.TargetPercentage > 100 {
			return domain.NewValidationError("phase %d: targetPercentage must be in (0,100], got %v", i, ph.TargetPercentage)
		}
		if ph.TargetPercentage <= last {
			return domain.NewValidationError("phase %d: percentages must be strictly increasing (got %v after %v)", i, ph.TargetPercentage, last)
		}
		last = ph.TargetPercentage
	}
	if last != 100 {
		return domain.NewValidationError("final phase must reach 100%%, got %v", last)
	}
	return nil
}

// materializePhases computes, for each phase i,
// cumulative_i = ceil(|D| * pct_i / 100); phase i's assignments are
// D[cumulative_{i-1}:cumulative_i]. Using ceil on cumulative boundaries
// (rather than per-phase) guarantees the final phase's cumulative count is
// always exactly |D|.
func materializePhases(rolloutID domain.RolloutID, plans []domain.PhasePlan, targetDevices []domain.DeviceID) ([]domain.RolloutPhase, *domain.Error) {
	total := len(targetDevices)
	phases := make([]domain.RolloutPhase, 0, len(plans))

	prevCumulative := 0
	for i, plan := range plans {
		cumulative, err := cumulativeCount(total, plan.TargetPercentage)
		if err != nil {
			return nil, domain.NewValidationError("phase %d: %v", i, err)
		}
		if cumulative < prevCumulative {
			cumulative = prevCumulative
		}
		if cumulative > total {
			cumulative = total
		}

		phaseID := domain.NewPhaseID()
		deviceSlice := targetDevices[prevCumulative:cumulative]
		assignments := make([]domain.RolloutDeviceAssignment, 0, len(deviceSlice))
		for _, deviceID := range deviceSlice {
			assignments = append(assignments, domain.RolloutDeviceAssignment{
				AssignmentID: domain.NewAssignmentID(),
				RolloutID:    rolloutID,
				PhaseID:      phaseID,
				DeviceID:     deviceID,
				Status:       domain.AssignmentStatusPending,
			})
		}

		phases = append(phases, domain.RolloutPhase{
			PhaseID:            phaseID,
			RolloutID:          rolloutID,
			PhaseNumber:        i + 1,
			Name:               plan.Name,
			TargetDeviceCount:  len(deviceSlice),
			TargetPercentage:   plan.TargetPercentage,
			Status:             domain.PhaseStatusPending,
			MinHealthyDuration: plan.MinHealthyDuration,
			DeviceAssignments:  assignments,
		})

		prevCumulative = cumulative
	}

	return phases, nil
}

func cumulativeCount(total int, percentage float64) (int, error) {
	raw := math.Ceil(float64(total) * percentage / 100.0)
	count, err := safecast.ToInt(raw)
	if err != nil {
		return 0, err
	}
	return count, nil
}
