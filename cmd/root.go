package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cgdops/rtaingest/internal/config"
	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/extract"
	"github.com/cgdops/rtaingest/internal/notify"
	"github.com/cgdops/rtaingest/internal/orchestrator"
	"github.com/cgdops/rtaingest/internal/queue"
	"github.com/cgdops/rtaingest/internal/storage"
)

var (
	// Flags - bound in init()
	envFile     string
	databaseURL string
	workers     int
	logFormat   string
	logLevel    string
	logOutput   string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	pool       *pgxpool.Pool
	store      *db.Store
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rtaingest",
	Short: "Ingest compressed switch response archives into the transaction ledger.",
	Long: `rtaingest consumes storage notifications for compressed response archives,
classifies each archive, walks it through the loading state machine (move,
extraction, verification, member registration, consolidation) and applies
the catalogued error and retry policy on failure.

The primary command is 'worker', which polls the process queue. Other
commands replay single envelopes, initialize the schema, or inspect the
ledger.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)
		rootLogger.Info("Logger initialized", "level", level.String(), "format", logFormat, "output", logOutput)

		// --- 2. Load/Validate Config ---
		var err error
		appConfig, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if databaseURL != "" {
			appConfig.DatabaseURL = databaseURL
		}
		if workers > 0 {
			appConfig.NumWorkers = workers
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		rootLogger.Debug("Configuration loaded",
			"bucket", appConfig.Bucket, "workers", appConfig.NumWorkers)

		// --- 3. Initialize Postgres Connection ---
		connectCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		pool, err = db.Connect(connectCtx, appConfig.DatabaseURL)
		if err != nil {
			return err
		}
		store = db.NewStore(pool)
		rootLogger.Info("Postgres connection successful.")

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pool != nil {
			rootLogger.Info("Closing Postgres connection pool.")
			pool.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.AddCommand(workerCmd)  // Long-running queue consumer
	rootCmd.AddCommand(processCmd) // Replay one envelope
	rootCmd.AddCommand(setupCmd)   // Schema and reference data
	rootCmd.AddCommand(stateCmd)   // Inspect the ledger
	rootCmd.AddCommand(watchCmd)   // Live ledger dashboard

	err := rootCmd.Execute()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Number of concurrent message handlers (overrides NUM_WORKERS)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// Helper to get logger (falls back to a discard logger before PreRun has run).
func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getStore() *db.Store {
	return store
}

func getConfig() config.Config {
	return appConfig
}

// newOrchestrator wires the AWS clients and pipeline collaborators for the
// commands that process messages.
func newOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	logger := getLogger()
	cfg := getConfig()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	objects := storage.New(awsCfg, cfg.EndpointURL, logger)
	queues := queue.New(awsCfg, cfg.EndpointURL, logger)
	notifier := notify.New(getStore(), queues, cfg.QueueEmailsURL, logger)
	expander := extract.New(objects, logger)

	return orchestrator.New(cfg, getStore(), objects, queues, notifier, expander, logger), nil
}
