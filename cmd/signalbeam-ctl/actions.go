package main

import (
	"context"
	"fmt"
	"time"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/spf13/cobra"
)

// lifecycleCommand builds a cobra.Command that parses a single rollout-id
// argument and invokes fn against the wired executor.
func lifecycleCommand(opts *globalOptions, use, short string, fn func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, rolloutID domain.RolloutID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rollout-id>",
		Short: short,
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

			if err := fn(ctx, svc, tenant, rolloutID); err != nil {
				return err
			}
			fmt.Printf("rollout %s: %s OK\n", rolloutID, use)
			return nil
		},
	}
}

func newStartCommand(opts *globalOptions) *cobra.Command {
	return lifecycleCommand(opts, "start", "Start a Pending rollout", func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, id domain.RolloutID) error {
		return svc.executor.Start(ctx, tenant, id)
	})
}

func newPauseCommand(opts *globalOptions) *cobra.Command {
	return lifecycleCommand(opts, "pause", "Pause an InProgress rollout", func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, id domain.RolloutID) error {
		return svc.executor.Pause(ctx, tenant, id)
	})
}

func newResumeCommand(opts *globalOptions) *cobra.Command {
	return lifecycleCommand(opts, "resume", "Resume a Paused rollout and reconcile immediately", func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, id domain.RolloutID) error {
		return svc.executor.Resume(ctx, tenant, id)
	})
}

func newCancelCommand(opts *globalOptions) *cobra.Command {
	return lifecycleCommand(opts, "cancel", "Cancel a non-terminal rollout (-> Failed)", func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, id domain.RolloutID) error {
		return svc.executor.Cancel(ctx, tenant, id)
	})
}

func newRollbackCommand(opts *globalOptions) *cobra.Command {
	return lifecycleCommand(opts, "rollback", "Manually roll back a non-terminal rollout", func(ctx context.Context, svc *ctlServices, tenant domain.TenantID, id domain.RolloutID) error {
		return svc.executor.Rollback(ctx, tenant, id)
	})
}

func newRetryCommand(opts *globalOptions) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "retry <rollout-id> --device <device-id>",
		Short: "Retry a Failed device assignment",
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
			deviceID, err := domain.ParseDeviceID(device)
			if err != nil {
				return fmt.Errorf("--device: %w", err)
			}

			svc, closeFn, err := dial(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := svc.executor.RetryFailed(ctx, tenant, rolloutID, deviceID); err != nil {
				return err
			}
			fmt.Printf("rollout %s: device %s queued for retry\n", rolloutID, deviceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device id (UUID) to retry")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}
