// Package logger — единый вывод логов twowire: slog с обработчиком tint и учётом quiet.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Quiet при true отключает информационные сообщения (Info); Error выводится всегда.
var Quiet bool

// Setup ставит tint-обработчик уровня level по умолчанию для slog.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	l := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(l)
	return l
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...any) {
	if Quiet {
		return
	}
	slog.Info(fmt.Sprintf(format, args...))
}

// Debug выводит отладочное сообщение (видно при уровне Debug).
func Debug(format string, args ...any) {
	if Quiet {
		return
	}
	slog.Debug(fmt.Sprintf(format, args...))
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
}
