// Command signalbeam-ctl is the operator CLI: a thin cobra wrapper over the
// Planner/Executor's public Go API for local/manual rollout control
// (CreatePhasedRollout, Start, Pause, Resume, Cancel, Rollback, RetryFailed).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:          "signalbeam-ctl",
		Short:        "Operate phased rollouts against a SignalBeam store",
		SilenceUsage: true,
	}
	opts.Bind(root.PersistentFlags())

	root.AddCommand(
		newCreateCommand(opts),
		newStartCommand(opts),
		newPauseCommand(opts),
		newResumeCommand(opts),
		newCancelCommand(opts),
		newRollbackCommand(opts),
		newRetryCommand(opts),
		newShowCommand(opts),
	)
	return root
}
