package ingestion

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Service feeds watcher events to the pipeline with a fixed pool of workers
type Service struct {
	watcher  *Watcher
	pipeline *Pipeline
	workers  int
	logger   *zap.Logger

	filesIngested atomic.Int64
	filesFailed   atomic.Int64
	rowsInserted  atomic.Int64
}

// NewService creates a service; workers below one are raised to one
func NewService(watcher *Watcher, pipeline *Pipeline, workers int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}

	return &Service{
		watcher:  watcher,
		pipeline: pipeline,
		workers:  workers,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. Events still queued at cancellation are
// dropped; a file already being ingested is finished first.
func (s *Service) Run(ctx context.Context) error {
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- s.watcher.Run(ctx)
	}()

	s.logger.Info("Starting ingestion workers", zap.Int("workers", s.workers))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for ev := range s.watcher.Events() {
				if ctx.Err() != nil {
					return
				}
				s.handle(ctx, workerID, ev)
			}
		}(i)
	}

	wg.Wait()
	err := <-watchErr

	s.LogMetrics()
	return err
}

func (s *Service) handle(ctx context.Context, workerID int, ev FileEvent) {
	// a started file runs to completion even if shutdown begins meanwhile
	summary, err := s.pipeline.OnFileCreated(context.WithoutCancel(ctx), ev)
	if err != nil {
		s.filesFailed.Add(1)
		s.logger.Error("Failed to ingest file",
			zap.Int("worker", workerID),
			zap.String("path", ev.Path),
			zap.Stringer("kind", ClassifyEvent(ev)),
			zap.Error(err))
		return
	}
	if summary.Empty() {
		return
	}

	s.filesIngested.Add(1)
	s.rowsInserted.Add(int64(summary.Rows))
}

// GetMetrics returns the counters since start
func (s *Service) GetMetrics() map[string]int64 {
	return map[string]int64{
		"files_ingested": s.filesIngested.Load(),
		"files_failed":   s.filesFailed.Load(),
		"rows_inserted":  s.rowsInserted.Load(),
	}
}

// LogMetrics writes the counters to the log
func (s *Service) LogMetrics() {
	metrics := s.GetMetrics()
	s.logger.Info("Ingestion totals",
		zap.Int64("files_ingested", metrics["files_ingested"]),
		zap.Int64("files_failed", metrics["files_failed"]),
		zap.Int64("rows_inserted", metrics["rows_inserted"]))
}
