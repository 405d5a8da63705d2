package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger 將 GORM 的日誌轉到 zerolog
type gormLogger struct {
	log      zerolog.Logger
	logLevel logger.LogLevel
}

func newGormLogger(l zerolog.Logger) logger.Interface {
	return &gormLogger{
		log:      l,
		logLevel: logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.log.Info().Msgf(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.log.Warn().Msgf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.log.Error().Msgf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		l.log.Error().Err(err).Dur("elapsed", elapsed).Str("sql", sql).Int64("rows", rows).Msg("trace")
	case elapsed > slowQueryThreshold && l.logLevel >= logger.Warn:
		l.log.Warn().Dur("elapsed", elapsed).Str("sql", sql).Int64("rows", rows).Msg("slow query")
	case l.logLevel >= logger.Info:
		l.log.Debug().Dur("elapsed", elapsed).Str("sql", sql).Int64("rows", rows).Msg("trace")
	}
}
