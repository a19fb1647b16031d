package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sifan077/clicklink/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// NewGorm opens the GORM handle the Postgres store uses for inserts, reads and
// migrations, sized with the same pool settings as NewPool.
func NewGorm(cfg config.PostgresConfig, log *zap.Logger) (*gorm.DB, error) {
	tuning, err := parseTuning(cfg)
	if err != nil {
		return nil, err
	}

	db, err := OpenGorm(postgres.Open(ConnString(cfg)), log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}
	if tuning.maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(tuning.maxConns))
	}
	if tuning.minConns > 0 {
		sqlDB.SetMaxIdleConns(int(tuning.minConns))
	}
	sqlDB.SetConnMaxLifetime(lo.CoalesceOrEmpty(tuning.maxLifetime, 5*time.Minute))
	if tuning.maxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(tuning.maxIdleTime)
	}

	return db, nil
}

// OpenGorm opens a gorm.DB over any dialector. Single statements run without
// an implicit transaction, so a conditional insert is one round trip. A nil
// log silences GORM.
func OpenGorm(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormLogger(log),
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}
	return db, nil
}

// gormLogger routes GORM warnings and slow queries into zap. Lookups of
// unknown codes are routine, so record-not-found is not logged.
func gormLogger(log *zap.Logger) gormlogger.Interface {
	if log == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		},
	)
}

// AutoMigrate creates or updates the tables for models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if len(models) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}
	return nil
}
