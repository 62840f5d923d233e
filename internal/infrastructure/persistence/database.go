package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Startup connection attempts; the delay doubles after each failure
const (
	connectAttempts   = 5
	connectFirstDelay = 500 * time.Millisecond
)

// Database wraps the fee store's connection pool
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase opens the PostgreSQL pool and waits for the server to answer,
// retrying while it starts up. Unique violations surface as
// gorm.ErrDuplicatedKey.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}

	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.sql.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := d.waitReady(ctx, log); err != nil {
		_ = d.sql.Close()
		return nil, err
	}
	return d, nil
}

func wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

func (d *Database) waitReady(ctx context.Context, log *zap.Logger) error {
	delay := connectFirstDelay
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = d.sql.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		log.Warn("Database not ready",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, err)
}

func gormConfig(cfg *config.DatabaseConfig, log *zap.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewSQLLogger(log, cfg.LogLevel,
			logger.WithSlowThreshold(cfg.SlowQuery)),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// AutoMigrate creates or updates every fee table from the GORM models
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate fee schema: %w", err)
	}
	return nil
}

// Ping backs the health endpoint
func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Close closes the pool
func (d *Database) Close() error {
	return d.sql.Close()
}

// InstrumentPool reports pool usage as observable gauges on meter. The
// returned registration stops the reporting.
func (d *Database) InstrumentPool(meter metric.Meter) (metric.Registration, error) {
	open, err := meter.Int64ObservableGauge("db_pool_open_connections",
		metric.WithDescription("Open connections in the fee store pool"))
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge("db_pool_in_use_connections",
		metric.WithDescription("Connections currently running a query"))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Queries that waited for a free connection"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := d.sql.Stats()
		o.ObserveInt64(open, int64(s.OpenConnections))
		o.ObserveInt64(inUse, int64(s.InUse))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, open, inUse, waits)
}
