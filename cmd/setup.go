package cmd

import (
	"github.com/spf13/cobra"
)

var seedData bool

// setupCmd creates the ledger schema and optionally seeds reference data.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the ledger tables and seed the error catalog",
	Long: `Creates the ledger tables if they do not exist. With --seed the error
catalog and mail template parameters are upserted as well; the pipeline
cannot classify failures without them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		if err := getStore().InitializeSchema(cmd.Context()); err != nil {
			return err
		}
		logger.Info("Ledger schema initialized.")

		if seedData {
			if err := getStore().SeedReferenceData(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Reference data seeded.")
		}
		return nil
	},
}

func init() {
	setupCmd.Flags().BoolVar(&seedData, "seed", true, "Seed the error catalog and mail template parameters")
}
