package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cgdops/rtaingest/internal/app"
)

var watchInterval time.Duration
var watchLimit int

// watchCmd runs the live ledger dashboard.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard over the ledger",
	Long: `Opens a full-screen dashboard that polls the ledger and shows the newest
processing runs and file state transitions as the worker moves archives
through the pipeline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fetch := func(ctx context.Context) (app.Snapshot, error) {
			runs, err := getStore().RecentRuns(ctx, "", watchLimit)
			if err != nil {
				return app.Snapshot{}, err
			}
			transitions, err := getStore().RecentTransitions(ctx, "", watchLimit)
			if err != nil {
				return app.Snapshot{}, err
			}
			return app.Snapshot{Runs: runs, Transitions: transitions, At: time.Now()}, nil
		}

		model := app.NewWatchModel(fetch, watchInterval)
		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 2*time.Second, "Ledger poll interval")
	watchCmd.Flags().IntVarP(&watchLimit, "limit", "n", 15, "Rows per dashboard section")
}
