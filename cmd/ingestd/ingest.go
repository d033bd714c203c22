package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/ingestion"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest the named files once, as if each had just been created",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordStore, err := openStore()
		if err != nil {
			return err
		}
		defer recordStore.Close()

		pipeline := ingestion.NewPipeline(recordStore, logger)

		failed := 0
		for _, path := range args {
			summary, err := pipeline.IngestFile(cmd.Context(), path)
			if err != nil {
				failed++
				logger.Error("Failed to ingest file", zap.String("path", path), zap.Error(err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d rows\n", path, summary.Kind, summary.Rows)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}
