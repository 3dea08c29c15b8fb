// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log builds the slog handlers used by the qsync command.
//
// Text and logfmt output go through charmbracelet/log, JSON through the
// standard slog JSON handler. Library packages only ever see a *slog.Logger.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// Format is an output format for log records.
type Format string

const (
	FormatText   Format = "text"
	FormatLogfmt Format = "logfmt"
	FormatJSON   Format = "json"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// CreateHandlerWithStrings parses level and format and returns the matching
// handler writing to w.
func CreateHandlerWithStrings(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return nil, err
	}
	f, err := GetFormat(format)
	if err != nil {
		return nil, err
	}
	return CreateHandler(w, lvl, f), nil
}

// CreateHandler returns a handler writing records at or above level to w.
func CreateHandler(w io.Writer, level slog.Level, format Format) slog.Handler {
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatLogfmt:
		return log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			Formatter:       log.LogfmtFormatter,
			ReportTimestamp: true,
		})
	default:
		return log.NewWithOptions(w, log.Options{
			Level:           log.Level(level),
			Formatter:       log.TextFormatter,
			ReportTimestamp: true,
		})
	}
}

// GetLevel parses a level name. "warning" is accepted for "warn".
func GetLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
}

// GetFormat parses a format name. An empty name means FormatText.
func GetFormat(format string) (Format, error) {
	switch f := Format(strings.ToLower(format)); f {
	case FormatText, FormatLogfmt, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
