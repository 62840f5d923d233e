package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// defaultMaxSQLLength keeps a batch invoice insert from flooding the log
const defaultMaxSQLLength = 2048

// SQLLogger sends GORM's statement log to zap. Each statement carries the
// request, school and trace of the context it ran in. Record-not-found is
// never logged; repositories turn it into a nil result.
type SQLLogger struct {
	logger    *zap.Logger
	level     gormlogger.LogLevel
	slow      time.Duration
	maxLength int
}

// SQLLoggerOption configures a SQLLogger
type SQLLoggerOption func(*SQLLogger)

// WithSlowThreshold logs statements slower than d at warn. Zero disables it.
func WithSlowThreshold(d time.Duration) SQLLoggerOption {
	return func(l *SQLLogger) {
		l.slow = d
	}
}

// WithMaxStatementLength truncates logged SQL to n bytes
func WithMaxStatementLength(n int) SQLLoggerOption {
	return func(l *SQLLogger) {
		if n > 0 {
			l.maxLength = n
		}
	}
}

// NewSQLLogger creates a SQLLogger. level is one of silent, error, warn,
// info or debug; anything else means warn.
func NewSQLLogger(base *zap.Logger, level string, opts ...SQLLoggerOption) *SQLLogger {
	l := &SQLLogger{
		logger:    base.Named("sql"),
		level:     ParseSQLLevel(level),
		slow:      200 * time.Millisecond,
		maxLength: defaultMaxSQLLength,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ParseSQLLevel maps a configured level name to GORM's levels
func ParseSQLLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.scoped(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.scoped(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.scoped(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs one executed statement
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	elapsed := time.Since(begin)
	isSlow := l.slow > 0 && elapsed > l.slow
	switch {
	case err != nil && l.level >= gormlogger.Error:
	case isSlow && l.level >= gormlogger.Warn:
	case l.level >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("statement", statementKind(sql)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", l.truncate(sql)),
	}

	log := l.scoped(ctx)
	switch {
	case err != nil:
		log.Error("SQL failed", append(fields, zap.Error(err))...)
	case isSlow:
		log.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.slow))...)
	default:
		log.Debug("SQL", fields...)
	}
}

// scoped adds the request, school and trace ids found in ctx
func (l *SQLLogger) scoped(ctx context.Context) *zap.Logger {
	log := WithTraceContext(ctx, l.logger)
	if fields := ScopeFrom(ctx).fieldsAfter(Scope{}); len(fields) > 0 {
		log = log.With(fields...)
	}
	return log
}

func (l *SQLLogger) truncate(sql string) string {
	if len(sql) <= l.maxLength {
		return sql
	}
	return sql[:l.maxLength] + "...(truncated)"
}

// statementKind returns the leading SQL verb, lowercased
func statementKind(sql string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	return strings.ToLower(verb)
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
