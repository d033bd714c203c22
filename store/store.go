package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/boyangli/telemetry-ingest/models"
)

// Options selects and tunes the backing database
type Options struct {
	Driver   string // mysql, sqlite
	Username string
	Password string
	Host     string
	Name     string
	Path     string // sqlite file

	LogLevel        string // silent, error, warn, info
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BatchSize       int
}

// RecordStore writes telemetry rows; every insert call is one transaction
type RecordStore struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
}

// Open connects to the database described by opts
func Open(opts Options, logger *zap.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, target, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormLogLevel(opts.LogLevel)),
		SkipDefaultTransaction: true, // batches run in explicit transactions
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database %s: %w", opts.Driver, target, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	logger.Info("Database connected",
		zap.String("driver", opts.Driver),
		zap.String("target", target))

	return New(db, opts.BatchSize, logger), nil
}

// New wraps an existing gorm handle
func New(db *gorm.DB, batchSize int, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RecordStore{db: db, batchSize: batchSize, logger: logger}
}

// InsertDetectionRows commits all rows or none
func (s *RecordStore) InsertDetectionRows(ctx context.Context, rows []models.DetectionRow) error {
	batch := make([]models.DetectionRow, len(rows))
	for i, row := range rows {
		row.DetectionTime = wallClock(row.DetectionTime)
		batch[i] = row
	}
	return insertBatch(ctx, s.db, batch, s.batchSize)
}

// InsertStatusRows commits all rows or none
func (s *RecordStore) InsertStatusRows(ctx context.Context, rows []models.StatusRow) error {
	batch := make([]models.StatusRow, len(rows))
	for i, row := range rows {
		row.ReportTime = wallClock(row.ReportTime)
		batch[i] = row
	}
	return insertBatch(ctx, s.db, batch, s.batchSize)
}

// Migrate creates the telemetry tables. The ingestion path never calls it;
// it exists for bootstrap and tests.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.DetectionRow{}, &models.StatusRow{}); err != nil {
		return fmt.Errorf("migrate telemetry tables: %w", err)
	}
	s.logger.Info("Telemetry tables migrated")
	return nil
}

// DB exposes the underlying handle
func (s *RecordStore) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool
func (s *RecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// insertBatch writes rows inside one transaction, size rows per statement.
// The connection is held only for the duration of the transaction.
func insertBatch[T any](ctx context.Context, db *gorm.DB, rows []T, size int) error {
	if len(rows) == 0 {
		return nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, size).Error
	})
	if err != nil {
		var zero T
		return fmt.Errorf("insert %d %T rows: %w", len(rows), zero, err)
	}
	return nil
}

// wallClock keeps the date and time as written and drops the offset.
// Columns are zone-less DATETIMEs and the driver would otherwise shift
// 14:30+02:00 to 12:30.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func dialectorFor(opts Options) (gorm.Dialector, string, error) {
	switch strings.ToLower(opts.Driver) {
	case "mysql":
		cfg := mysqldriver.NewConfig()
		cfg.User = opts.Username
		cfg.Passwd = opts.Password
		cfg.Net = "tcp"
		cfg.Addr = opts.Host
		cfg.DBName = opts.Name
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return mysql.Open(cfg.FormatDSN()), fmt.Sprintf("%s/%s", opts.Host, opts.Name), nil

	case "sqlite":
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, "", fmt.Errorf("failed to create db dir %s: %w", dir, err)
			}
		}
		return sqlite.Open(opts.Path), opts.Path, nil

	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
