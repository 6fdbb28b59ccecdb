package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/planner"
	"github.com/spf13/cobra"
)

func newCreateCommand(opts *globalOptions) *cobra.Command {
	var (
		bundleID         string
		version          string
		previousVersion  string
		allDevices       bool
		groupID          string
		tagQuery         string
		deviceIDs        []string
		phaseSpecs       []string
		failureThreshold float64
		name             string
		description      string
		createdBy        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a phased rollout (CreatePhasedRollout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			bundle, err := domain.ParseBundleID(bundleID)
			if err != nil {
				return fmt.Errorf("--bundle: %w", err)
			}

			selectorCount := 0
			if allDevices {
				selectorCount++
			}
			if groupID != "" {
				selectorCount++
			}
			if tagQuery != "" {
				selectorCount++
			}
			if len(deviceIDs) > 0 {
				selectorCount++
			}
			if selectorCount != 1 {
				return fmt.Errorf("exactly one of --all-devices, --group, --tag-query, --device must be given")
			}

			target, err := buildSelector(allDevices, groupID, tagQuery, deviceIDs)
			if err != nil {
				return err
			}

			phases, err := parsePhaseSpecs(phaseSpecs)
			if err != nil {
				return err
			}

			svc, closeFn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			rollout, err := svc.planner.CreatePhasedRollout(ctx, planner.CreateRolloutRequest{
				TenantID:         tenant,
				BundleID:         bundle,
				TargetVersion:    version,
				PreviousVersion:  previousVersion,
				TargetSelector:   target,
				Phases:           phases,
				FailureThreshold: failureThreshold,
				Name:             name,
				Description:      description,
				CreatedBy:        createdBy,
			})
			if err != nil {
				return err
			}

			fmt.Printf("rollout created: %s (%d phase(s), %d total device(s))\n", rollout.RolloutID, len(rollout.Phases), sumAssignments(rollout))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&bundleID, "bundle", "", "bundle id (UUID)")
	fs.StringVar(&version, "version", "", "target bundle version (semver)")
	fs.StringVar(&previousVersion, "previous-version", "", "previous bundle version, used as the rollback target")
	fs.BoolVar(&allDevices, "all-devices", false, "target every device in the tenant")
	fs.StringVar(&groupID, "group", "", "target a group id (UUID)")
	fs.StringVar(&tagQuery, "tag-query", "", "target devices matching a tag query expression")
	fs.StringSliceVar(&deviceIDs, "device", nil, "target an explicit device id (repeatable)")
	fs.StringSliceVar(&phaseSpecs, "phase", nil, "phase spec name:percentage[:minHealthyDuration], e.g. canary:5:10m (repeatable, in order)")
	fs.Float64Var(&failureThreshold, "failure-threshold", 0.05, "fraction of a phase's devices allowed to fail before auto-rollback")
	fs.StringVar(&name, "name", "", "rollout name")
	fs.StringVar(&description, "description", "", "rollout description")
	fs.StringVar(&createdBy, "created-by", "signalbeam-ctl", "operator identity recorded on the rollout")
	_ = cmd.MarkFlagRequired("bundle")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func buildSelector(allDevices bool, groupID, tagQuery string, deviceIDs []string) (domain.TargetSelector, error) {
	switch {
	case allDevices:
		return domain.AllDevicesSelector(), nil
	case groupID != "":
		id, err := domain.ParseGroupID(groupID)
		if err != nil {
			return domain.TargetSelector{}, fmt.Errorf("--group: %w", err)
		}
		return domain.GroupSelector(id), nil
	case tagQuery != "":
		return domain.TagQuerySelector(tagQuery), nil
	default:
		ids := make([]domain.DeviceID, 0, len(deviceIDs))
		for _, s := range deviceIDs {
			id, err := domain.ParseDeviceID(s)
			if err != nil {
				return domain.TargetSelector{}, fmt.Errorf("--device %q: %w", s, err)
			}
			ids = append(ids, id)
		}
		return domain.DeviceIDsSelector(ids), nil
	}
}

// parsePhaseSpecs parses "name:percentage[:minHealthyDuration]" entries,
// preserving the order phases were given on the command line: that order is
// the rollout's advancement order.
func parsePhaseSpecs(specs []string) ([]domain.PhasePlan, error) {
	phases := make([]domain.PhasePlan, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("--phase %q: expected name:percentage[:minHealthyDuration]", spec)
		}
		pct, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("--phase %q: invalid percentage: %w", spec, err)
		}
		plan := domain.PhasePlan{Name: parts[0], TargetPercentage: pct}
		if len(parts) == 3 && parts[2] != "" {
			d, err := time.ParseDuration(parts[2])
			if err != nil {
				return nil, fmt.Errorf("--phase %q: invalid minHealthyDuration: %w", spec, err)
			}
			plan.MinHealthyDuration = &d
		}
		phases = append(phases, plan)
	}
	return phases, nil
}

func sumAssignments(r *domain.Rollout) int {
	total := 0
	for _, p := range r.Phases {
		total += p.TargetDeviceCount
	}
	return total
}
