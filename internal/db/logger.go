package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// slowQueryThreshold is the elapsed time above which a control-plane query
// is logged at warn level even when SQL tracing is off.
const slowQueryThreshold = 200 * time.Millisecond

// gormZapLogger routes GORM's internal logging through the shared zap
// logger, so control-plane SQL traces, slow queries and errors land in the
// same structured stream as everything else.
type gormZapLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
}

// newZapGORMLogger adapts log to gormlogger.Interface. gormlogger.Silent
// disables GORM output entirely; gormlogger.Info traces every statement.
func newZapGORMLogger(log *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	if level == 0 {
		level = gormlogger.Warn
	}
	// GORM invokes the logger three frames deep; skip them so the caller
	// column points at the repository method.
	return &gormZapLogger{log: log.WithOptions(zap.AddCallerSkip(3)), level: level}
}

func (l *gormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZapLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs one executed statement. ErrRecordNotFound is not an error at
// this layer; the repositories translate it to repositories.ErrNotFound.
func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("control-plane query error", append(fields, zap.Error(err))...)
	case elapsed > slowQueryThreshold:
		l.log.Warn("control-plane slow query", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug("control-plane query", fields...)
	}
}
