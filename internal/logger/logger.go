// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package logger provides the structured logger used throughout mylocation.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so that components can share one logging setup.
type Logger struct {
	*slog.Logger
}

// New returns a Logger that writes text records at the given level to stderr.
func New(level slog.Level) *Logger {
	return NewLogger(level)
}

// NewLogger returns a Logger that writes text records at the given level to the provided
// writers. If no writer is given, stderr is used.
func NewLogger(level slog.Level, writers ...io.Writer) *Logger {
	var output io.Writer = os.Stderr
	switch len(writers) {
	case 0:
	case 1:
		output = writers[0]
	default:
		output = io.MultiWriter(writers...)
	}
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// With returns a Logger that includes the given attributes in each record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
