package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/ingestion"
	"github.com/boyangli/telemetry-ingest/producer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the configured directory and ingest new files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runService(ctx)
	},
}

func runService(ctx context.Context) error {
	logger.Info("Starting telemetry ingestion",
		zap.String("watch_dir", cfg.Watch.Dir),
		zap.Int("workers", cfg.Watch.Workers),
		zap.String("db_driver", cfg.DB.Driver))

	if err := os.MkdirAll(cfg.Watch.Dir, 0755); err != nil {
		return err
	}

	recordStore, err := openStore()
	if err != nil {
		return err
	}
	defer recordStore.Close()

	var opts []ingestion.Option

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		metrics, err := ingestion.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, ingestion.WithMetrics(metrics))

		srv := serveMetrics(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Kafka.Enabled {
		kafkaProducer, err := producer.NewKafkaProducer(&cfg.Kafka, logger)
		if err != nil {
			return err
		}
		defer kafkaProducer.Close()
		opts = append(opts, ingestion.WithNotifier(kafkaProducer))
	}

	watcher, err := ingestion.NewWatcher(cfg.Watch.Dir, cfg.Watch.BufferSize, logger)
	if err != nil {
		return err
	}

	pipeline := ingestion.NewPipeline(recordStore, logger, opts...)
	svc := ingestion.NewService(watcher, pipeline, cfg.Watch.Workers, logger)

	err = svc.Run(ctx)
	logger.Info("Telemetry ingestion stopped")
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
