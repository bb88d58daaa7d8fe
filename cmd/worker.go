package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// workerCmd runs the long-lived queue consumer.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Poll the process queue and run every message through the pipeline",
	Long: `Starts the ingestion worker: long-polls the process queue in batches and
fans messages across concurrent handlers. Classified failures are resolved
by the retry policy; unclassified failures leave the message on the queue
for redelivery. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, err := newOrchestrator(ctx)
		if err != nil {
			return err
		}
		return orch.Run(ctx)
	},
}
