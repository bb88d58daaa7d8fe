package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var stateLimit int
var stateFilter string

// stateCmd prints ledger views: file state history, processing runs, or the
// members of one file's current run.
var stateCmd = &cobra.Command{
	Use:   "state [files|runs|members <file-id>]",
	Short: "View the ledger: file history, processing runs, or run members",
	Long: `Queries the ledger and prints one of its operator views.
'files' shows the newest state transitions, 'runs' the newest processing
runs, and 'members <file-id>' the members registered under that file's
current run. Use flags to filter by state and limit the output.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		view := "files"
		if len(args) > 0 {
			view = strings.ToLower(args[0])
		}

		logger.Info("Querying ledger", "view", view, "state_filter", stateFilter, "limit", stateLimit)

		switch view {
		case "files", "file":
			return getStore().DisplayHistory(cmd.Context(), stateFilter, stateLimit)
		case "runs", "run":
			return getStore().DisplayRuns(cmd.Context(), stateFilter, stateLimit)
		case "members", "member":
			if len(args) < 2 {
				return fmt.Errorf("the members view needs a file id")
			}
			fileID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid file id %s: %w", args[1], err)
			}
			return getStore().DisplayMembers(cmd.Context(), fileID)
		default:
			return fmt.Errorf("unknown view: %s (use 'files', 'runs' or 'members')", view)
		}
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of records displayed")
	stateCmd.Flags().StringVarP(&stateFilter, "state", "s", "", "Filter records by state (e.g. ENVIADO, FALLIDO, RECHAZADO)")
}
