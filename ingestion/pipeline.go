package ingestion

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/models"
)

// RecordStore persists rows. Each call is one transaction: either every row
// of the batch is committed or none is.
type RecordStore interface {
	InsertDetectionRows(ctx context.Context, rows []models.DetectionRow) error
	InsertStatusRows(ctx context.Context, rows []models.StatusRow) error
}

// Notifier is told about every file whose rows were committed
type Notifier interface {
	Notify(ctx context.Context, summary *models.IngestSummary) error
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithNotifier publishes a summary after each committed file
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithMetrics records per-file outcomes
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline turns one created file into one committed batch. It holds no
// per-file state, so a single Pipeline may serve concurrent invocations.
type Pipeline struct {
	store    RecordStore
	notifier Notifier
	metrics  *Metrics
	logger   *zap.Logger
}

// NewPipeline creates a pipeline writing to store
func NewPipeline(store RecordStore, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestFile runs the pipeline on a regular file path
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.IngestSummary, error) {
	return p.OnFileCreated(ctx, FileEvent{Path: path})
}

// OnFileCreated classifies, reads, parses, transforms and stores one file.
// Unmatched names and directories return an empty summary without touching
// the filesystem or the store.
func (p *Pipeline) OnFileCreated(ctx context.Context, ev FileEvent) (*models.IngestSummary, error) {
	kind := ClassifyEvent(ev)
	if kind == models.Ignored {
		return &models.IngestSummary{Path: ev.Path, Kind: models.Ignored}, nil
	}

	start := time.Now()
	summary, err := p.ingest(ctx, ev.Path, kind)
	p.metrics.observe(kind, err, summary, time.Since(start))
	if err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	p.logger.Info("Ingested file",
		zap.String("path", summary.Path),
		zap.Stringer("kind", summary.Kind),
		zap.Int("rows", summary.Rows),
		zap.String("ingest_id", summary.IngestID),
		zap.Duration("duration", summary.Duration))

	if p.notifier != nil {
		if nerr := p.notifier.Notify(ctx, summary); nerr != nil {
			// rows are committed; the notice is best effort
			p.logger.Warn("Failed to publish ingest notice",
				zap.String("path", summary.Path),
				zap.String("ingest_id", summary.IngestID),
				zap.Error(nerr))
		}
	}

	return summary, nil
}

func (p *Pipeline) ingest(ctx context.Context, path string, kind models.FileKind) (*models.IngestSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IngestError{Kind: ErrorKindIO, Path: path, Err: err}
	}

	var rows int
	switch kind {
	case models.DetectionFile:
		events, err := ParseDetectionPayload(path, data)
		if err != nil {
			return nil, parseFailure(path, err)
		}
		batch := models.DetectionRowsFrom(events)
		if err := p.store.InsertDetectionRows(ctx, batch); err != nil {
			return nil, &IngestError{Kind: ErrorKindStore, Path: path, Err: err}
		}
		rows = len(batch)

	case models.StatusFile:
		reports, err := ParseStatusPayload(path, data)
		if err != nil {
			return nil, parseFailure(path, err)
		}
		batch := models.StatusRowsFrom(reports)
		if err := p.store.InsertStatusRows(ctx, batch); err != nil {
			return nil, &IngestError{Kind: ErrorKindStore, Path: path, Err: err}
		}
		rows = len(batch)
	}

	return &models.IngestSummary{
		IngestID:   uuid.New().String(),
		Path:       path,
		Kind:       kind,
		Rows:       rows,
		IngestedAt: time.Now().UTC(),
	}, nil
}

// parseFailure classifies a rejected payload. An empty or cut-off body means
// the read caught the file before its writer finished, which is a read
// failure rather than a bad payload.
func parseFailure(path string, err error) *IngestError {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &IngestError{Kind: ErrorKindIO, Path: path, Err: err}
	}
	return &IngestError{Kind: ErrorKindParse, Path: path, Err: err}
}
