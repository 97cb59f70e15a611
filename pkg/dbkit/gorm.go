// Package dbkit bootstraps the GORM connection the same way the teacher's
// pkg/db/gorm.go does: dialector chosen by an explicit database type, sqlite
// as the local-dev default, mysql for production, with the SQL logger wired
// to the process logger rather than gorm's default stdout writer.
package dbkit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database identified by dbType/dsn. dbType is "mysql"
// or "sqlite"; sqlite is assumed for any other value so local development
// and tests never need a running MySQL instance.
func Open(dbType, dsn string, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newZerologAdapter(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AutoMigrate runs GORM's auto-migration for the given models, matching the
// teacher's pkg/db/gorm.go helper of the same name.
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// zerologAdapter satisfies gorm's logger.Interface so slow-query and error
// logs flow through the same structured logger as the rest of the process
// instead of the teacher's separate log.New(os.Stdout, ...) writer.
type zerologAdapter struct {
	log           zerolog.Logger
	slowThreshold time.Duration
}

func newZerologAdapter(log zerolog.Logger) gormlogger.Interface {
	return &zerologAdapter{log: log, slowThreshold: 200 * time.Millisecond}
}

func (a *zerologAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return a }

func (a *zerologAdapter) Info(_ context.Context, msg string, args ...interface{}) {
	a.log.Info().Msgf(msg, args...)
}

func (a *zerologAdapter) Warn(_ context.Context, msg string, args ...interface{}) {
	a.log.Warn().Msgf(msg, args...)
}

func (a *zerologAdapter) Error(_ context.Context, msg string, args ...interface{}) {
	a.log.Error().Msgf(msg, args...)
}

func (a *zerologAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	ev := a.log.Debug()
	if err != nil {
		ev = a.log.Error().Err(err)
	} else if elapsed > a.slowThreshold {
		ev = a.log.Warn()
	}
	ev.Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query")
}
