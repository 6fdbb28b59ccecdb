package main

import (
	"context"
	"fmt"
	"time"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/spf13/cobra"
)

func newShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <rollout-id>",
		Short: "Print a rollout's current state and per-phase progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := opts.tenantID()
			if err != nil {
				return err
			}
			rolloutID, err := domain.ParseRolloutID(args[0])
			if err != nil {
				return fmt.Errorf("rollout id: %w", err)
			}

			svc, closeFn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			rollout, err := svc.store.LoadRollout(ctx, tenant, rolloutID)
			if err != nil {
				return err
			}
			if rollout == nil {
				return fmt.Errorf("rollout %s not found", rolloutID)
			}

			fmt.Printf("rollout %s: %s (phase %d/%d)\n", rollout.RolloutID, rollout.Status, rollout.CurrentPhaseNumber, len(rollout.Phases))
			for _, p := range rollout.Phases {
				fmt.Printf("  phase %d %q: %s  success=%d failure=%d target=%d rate=%.1f%%\n",
					p.PhaseNumber, p.Name, p.Status, p.SuccessCount, p.FailureCount, p.TargetDeviceCount, p.FailureRate()*100)
			}
			return nil
		},
	}
}
