// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kolkov/qsync/internal/log"
	"github.com/kolkov/qsync/qsync"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrLogHandlerFailed = errors.New("log handler failed")
	ErrStressFailed     = errors.New("stress run failed")
)

const longDesc = `qsync drives the locks of the qsync library with concurrent workloads
and checks that each keeps its invariant.

All locks share one engine: a state word and a FIFO queue of parked
goroutines. The stress scenarios cover the engine's exclusive and shared
paths, condition queues, and cancellation by timeout and context.`

func newRootCmd() *cobra.Command {
	var logLevel, logFormat string

	cmd := &cobra.Command{
		Use:           "qsync",
		Short:         "Stress the qsync queued synchronizers",
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       qsync.Version,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log_level", "warn", "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log_format", "text", "Set the log format (text, logfmt, json)")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		h, err := log.CreateHandlerWithStrings(cc.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogHandlerFailed, err)
		}
		slog.SetDefault(slog.New(h))
		slog.Debug("ready to go", "command", cc.Name())
		return nil
	}

	cmd.AddCommand(newStressCmd())
	cmd.AddCommand(newScenariosCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
