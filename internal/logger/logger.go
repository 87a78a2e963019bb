package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"log/slog"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	return slog.New(handler)
}

func SetOutput(w io.Writer) {
	loggerMu.Lock()
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(os.Stdout)
	}
	return baseLogger
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// Scoped 带固定结构化字段的日志句柄。run 级日志统一携带 run_id，
// 不在每条消息里手拼 ID。
type Scoped struct {
	l *slog.Logger
}

func With(args ...any) Scoped {
	return Scoped{l: activeLogger().With(args...)}
}

func (s Scoped) With(args ...any) Scoped {
	return Scoped{l: s.l.With(args...)}
}

func (s Scoped) Debugf(format string, v ...any) {
	s.l.Debug(fmt.Sprintf(format, v...))
}

func (s Scoped) Infof(format string, v ...any) {
	s.l.Info(fmt.Sprintf(format, v...))
}

func (s Scoped) Warnf(format string, v ...any) {
	s.l.Warn(fmt.Sprintf(format, v...))
}

func (s Scoped) Errorf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
}
