package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/ingestion"
	"github.com/boyangli/telemetry-ingest/logging"
	"github.com/boyangli/telemetry-ingest/models"
)

// Parses and transforms a telemetry file without a database
func main() {
	filePath := flag.String("file", "data/objects_detection_sample.json", "Path to telemetry JSON file")
	limit := flag.Int("limit", 10, "Number of rows to display")
	flag.Parse()

	logger, err := logging.New("info", "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	kind := ingestion.Classify(*filePath)
	logger.Info("Dry run",
		zap.String("file", *filePath),
		zap.String("kind", kind.String()),
		zap.Int("limit", *limit))

	if kind == models.Ignored {
		logger.Warn("File name matches neither objects_detection nor vehicles_status; it would be ignored")
		return
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		logger.Fatal("Failed to read file", zap.Error(err))
	}

	startTime := time.Now()
	total, err := printRows(os.Stdout, kind, *filePath, data, *limit)
	if err != nil {
		logger.Fatal("Dry run failed", zap.Error(err))
	}

	logger.Info("Dry run complete",
		zap.Int("rows", total),
		zap.Duration("elapsed", time.Since(startTime)),
		zap.String("table", kind.String()))
}

type jsonRow interface {
	ToJSON() ([]byte, error)
}

// printRows parses data as kind and writes up to limit rows to w, one JSON
// document per line. It returns the number of rows the file produces.
func printRows(w io.Writer, kind models.FileKind, file string, data []byte, limit int) (int, error) {
	var rows []jsonRow
	switch kind {
	case models.DetectionFile:
		events, err := ingestion.ParseDetectionPayload(file, data)
		if err != nil {
			return 0, err
		}
		detectionRows := models.DetectionRowsFrom(events)
		for i := range detectionRows {
			rows = append(rows, &detectionRows[i])
		}
	case models.StatusFile:
		reports, err := ingestion.ParseStatusPayload(file, data)
		if err != nil {
			return 0, err
		}
		statusRows := models.StatusRowsFrom(reports)
		for i := range statusRows {
			rows = append(rows, &statusRows[i])
		}
	default:
		return 0, fmt.Errorf("%s is not a telemetry file", file)
	}

	for i, row := range rows {
		if i >= limit {
			break
		}
		out, err := row.ToJSON()
		if err != nil {
			return 0, err
		}
		if _, err := fmt.Fprintln(w, string(out)); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
