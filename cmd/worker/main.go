package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixmaster-audio/pipeline/internal/app"
)

// version is set via -ldflags at release build time; left as a dev default
// otherwise, matching the teacher's env-var-driven version string.
var version = "0.0.0-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mixmaster-worker",
		Short:         "mixmaster-worker runs the mix-and-master batch pipeline",
		Long:          "mixmaster-worker pops jobs off a queue, runs them through the contract-driven stage pipeline, and publishes the final mix report and mixdown.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the worker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mixmaster-worker %s\n", version)
		},
	})
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newSubmitCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the worker loop and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize worker: %w", err)
			}
			defer a.Close()

			a.Log.Info("worker starting", "offline", a.Cfg.Offline, "poll_interval", a.Cfg.WorkerPollInterval.String())
			a.Start()

			waitForSignal()
			a.Log.Info("worker shutting down")
			return nil
		},
	}
}
