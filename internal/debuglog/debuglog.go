// Package debuglog writes the hook's diagnostic log. Anomalies are appended
// as timestamped lines to debug.log in the stats directory; nothing in this
// package ever surfaces an error to the caller, because the log itself is
// best-effort.
package debuglog

import (
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 5
	maxBackups = 2

	// A corrupt transcript can fail on every line. The bucket lets normal
	// operation through untouched and clamps pathological bursts.
	logsPerSecond = 20
	logBurst      = 50
)

// Logger is a throttled anomaly logger.
type Logger struct {
	z       zerolog.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
	closer  io.Closer
}

// New returns a logger appending to debug.log under dir, size-capped and
// rotated by lumberjack.
func New(dir string) *Logger {
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debug.log"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	return &Logger{
		z:       zerolog.New(w).With().Timestamp().Logger(),
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), logBurst),
		closer:  w,
	}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{
		z:       zerolog.Nop(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// Warnf records a recoverable anomaly.
func (l *Logger) Warnf(format string, args ...any) {
	if !l.limiter.Allow() {
		l.dropped.Add(1)
		return
	}
	l.z.Warn().Msgf(format, args...)
}

// Errorf records an anomaly that degraded the current invocation.
func (l *Logger) Errorf(format string, args ...any) {
	if !l.limiter.Allow() {
		l.dropped.Add(1)
		return
	}
	l.z.Error().Msgf(format, args...)
}

// Close flushes the throttle drop counter and releases the log file.
func (l *Logger) Close() {
	if n := l.dropped.Swap(0); n > 0 {
		l.z.Warn().Int64("dropped", n).Msg("log lines suppressed by throttle")
	}
	if l.closer != nil {
		l.closer.Close()
	}
}
