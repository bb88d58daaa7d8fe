package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// processCmd replays a single envelope without the polling loop, mostly for
// local debugging and for re-running dead-lettered messages by hand.
var processCmd = &cobra.Command{
	Use:   "process [envelope.json]",
	Short: "Run one message envelope through the pipeline",
	Long: `Reads one JSON envelope (a storage notification or a re-drive message)
from the given file, or from stdin when no file is named, and processes it
exactly as the worker would.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body []byte
		var err error
		if len(args) == 1 {
			body, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read envelope file %s: %w", args[0], err)
			}
		} else {
			body, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read envelope from stdin: %w", err)
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("empty envelope")
		}

		orch, err := newOrchestrator(cmd.Context())
		if err != nil {
			return err
		}
		return orch.ProcessOne(cmd.Context(), body)
	},
}
