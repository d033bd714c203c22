package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/config"
	"github.com/boyangli/telemetry-ingest/logging"
	"github.com/boyangli/telemetry-ingest/store"
)

var (
	configPath string

	cfg    *config.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "Ingest dropped vehicle telemetry files into the database",
	Long: `ingestd watches a directory for objects_detection and vehicles_status
JSON files and stores their contents as rows, one transaction per file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables still apply
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./ingest.yaml or /etc/telemetry-ingest/ingest.yaml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd, ingestCmd, migrateCmd)
}

func openStore() (*store.RecordStore, error) {
	return store.Open(store.Options{
		Driver:          cfg.DB.Driver,
		Username:        cfg.DB.Username,
		Password:        cfg.DB.Password,
		Host:            cfg.DB.Host,
		Name:            cfg.DB.Name,
		Path:            cfg.DB.Path,
		LogLevel:        cfg.DB.LogLevel,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		BatchSize:       cfg.DB.BatchSize,
	}, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
