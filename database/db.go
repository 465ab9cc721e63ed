package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/playurl/logger"
	"github.com/kbukum/playurl/resilience"
)

// DB is a pooled gorm handle whose queries log through the service logger.
type DB struct {
	GormDB *gorm.DB
	log    *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open connects with the dialector named by cfg.Driver.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	if cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	return NewWithContext(ctx, sqlite.Open(cfg.DSN), cfg, log)
}

// NewWithContext opens dialector and pings it, retrying once a second up to
// cfg.ConnectAttempts times. ctx cancels the wait between attempts.
func NewWithContext(ctx context.Context, dialector gorm.Dialector, cfg Config, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	gormCfg := &gorm.Config{Logger: newGormLogger(log, cfg.SlowQueryThreshold, parseLogLevel(cfg.LogLevel))}

	attempt := 0
	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.ConnectAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
		BackoffFactor:  1,
		RetryIf:        func(error) bool { return ctx.Err() == nil },
		OnRetry: func(n int, err error, wait time.Duration) {
			log.Warn("Database connection attempt failed, retrying", logger.Fields(
				"attempt", n, logger.FieldError, err.Error(), "backoff", wait.String()))
		},
	}
	db, err := resilience.Retry(ctx, retry, func() (*gorm.DB, error) {
		attempt++
		return connect(ctx, dialector, gormCfg, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
	}

	log.Info("Database connection established", logger.Fields("attempt", attempt, "driver", cfg.Driver))
	return &DB{GormDB: db, log: log}, nil
}

func connect(ctx context.Context, dialector gorm.Dialector, gormCfg *gorm.Config, cfg Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return db, nil
}

// Close releases the pool. Later calls return the first result.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		sqlDB, err := d.GormDB.DB()
		if err != nil {
			d.closeErr = err
			return
		}
		d.log.Info("Closing database connection")
		d.closeErr = sqlDB.Close()
	})
	return d.closeErr
}

// PingContext checks that a connection can be obtained.
func (d *DB) PingContext(ctx context.Context) error {
	sqlDB, err := d.GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats summarizes the pool for health details.
func (d *DB) Stats() map[string]interface{} {
	sqlDB, err := d.GormDB.DB()
	if err != nil {
		return nil
	}
	s := sqlDB.Stats()
	return map[string]interface{}{
		"open_connections": s.OpenConnections,
		"in_use":           s.InUse,
		"idle":             s.Idle,
		"wait_count":       s.WaitCount,
	}
}

// WithContext returns a gorm session bound to ctx.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.GormDB.WithContext(ctx)
}

// Transaction runs fn in a transaction bound to ctx.
func (d *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.GormDB.WithContext(ctx).Transaction(fn)
}
