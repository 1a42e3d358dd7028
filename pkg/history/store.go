package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("history: run not found")

// Store persists runs.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	AppendEvents(ctx context.Context, events []RunEvent) error
	Runs(ctx context.Context, limit int) ([]Run, error)
	Events(ctx context.Context, runID string) ([]RunEvent, error)
}

// gormLogger routes GORM's logging through slog.
type gormLogger struct {
	slogger *slog.Logger
}

func (l *gormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.InfoContext(ctx, msg, "gorm_data", data)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.WarnContext(ctx, msg, "gorm_data", data)
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.slogger.ErrorContext(ctx, msg, "gorm_data", data)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("latency", time.Since(begin).String()),
		slog.String("sql", sql),
		slog.Int64("rows_affected", rows),
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		attrs = append(attrs, slog.Any("error", err))
		l.slogger.LogAttrs(ctx, slog.LevelError, "gorm trace", attrs...)
		return
	}
	l.slogger.LogAttrs(ctx, slog.LevelDebug, "gorm trace", attrs...)
}

// GormStore is a Store backed by GORM.
type GormStore struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string, log *slog.Logger) (*GormStore, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "history")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: (&gormLogger{slogger: log}).LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	store, err := NewGormStore(db)
	if err != nil {
		return nil, err
	}
	log.Info("database ready")
	return store, nil
}

// NewGormStore wraps an open database and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Run{}, &RunEvent{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateRun inserts run.
func (s *GormStore) CreateRun(ctx context.Context, run *Run) error {
	return s.db.WithContext(ctx).Create(run).Error
}

// UpdateRun saves every field of run.
func (s *GormStore) UpdateRun(ctx context.Context, run *Run) error {
	return s.db.WithContext(ctx).Save(run).Error
}

// AppendEvents inserts events in one batch.
func (s *GormStore) AppendEvents(ctx context.Context, events []RunEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(&events, 100).Error
}

// Runs returns the most recent runs first.
func (s *GormStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// Events returns a run's events in order.
func (s *GormStore) Events(ctx context.Context, runID string) ([]RunEvent, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", runID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrRunNotFound
	}
	var events []RunEvent
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&events).Error
	return events, err
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
