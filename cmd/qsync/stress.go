// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kolkov/qsync/internal/config"
	"github.com/kolkov/qsync/internal/metrics"
	"github.com/kolkov/qsync/internal/stress"
	"github.com/kolkov/qsync/qsync"
)

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run stress scenarios against the locks",
		Long: `Run stress scenarios against the locks.

Flags override the values of the profile given with --config. Without
--scenario every scenario runs.`,
		Example: `  qsync stress --workers 16 --iterations 5000
  qsync stress --scenario mutex --scenario cancel-churn --fair
  qsync stress --config profile.yaml --output json`,
		Args: cobra.NoArgs,
		RunE: runStress,
	}

	flags := cmd.Flags()
	flags.String("config", "", "Load a stress profile from this YAML file")
	flags.Int("workers", config.DefaultWorkers, "Number of concurrent workers per scenario")
	flags.Int("iterations", config.DefaultIterations, "Iterations per worker")
	flags.Bool("fair", false, "Use fair locks")
	flags.StringSlice("scenario", nil, "Run only these scenarios (repeatable)")
	flags.Duration("timeout", config.DefaultTimeout, "Time limit per scenario (0 for none)")
	flags.Int("permits", config.DefaultPermits, "Permits of the semaphore scenario")
	flags.Int("parties", config.DefaultParties, "Parties of the barrier scenario")
	flags.String("output", "table", "Report format (table, json)")
	flags.String("color", "auto", "Colour the table (auto, always, never)")
	flags.Uint64("sample_rate", 1, "Count one in this many uncontended acquires (0 disables)")
	flags.Bool("stack_capture", false, "Capture the stacks of queued goroutines")
	flags.Bool("metrics", false, "Print Prometheus metrics after the run")
	flags.String("cpuprofile", "", "Write a CPU profile to this file")
	flags.String("blockprofile", "", "Write a block profile to this file")
	flags.String("mutexprofile", "", "Write a mutex profile to this file")

	for _, name := range []string{"config", "cpuprofile", "blockprofile", "mutexprofile"} {
		if err := cmd.MarkFlagFilename(name); err != nil {
			panic(err)
		}
	}

	return cmd
}

type stressArgs struct {
	profile    *config.Profile
	output     string
	color      string
	sampleRate uint64
	capture    bool
	metrics    bool
	prof       profiler
}

// parseStressArgs layers the command line over the profile file.
func parseStressArgs(cc *cobra.Command) (*stressArgs, error) {
	var merr error
	flags := cc.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	profile := config.Default()
	if path != "" {
		p, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		profile = p
	}

	intFlag := func(name string, dst *int) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetInt(name)
		if err != nil {
			merr = multierror.Append(merr, err)
			return
		}
		*dst = v
	}
	intFlag("workers", &profile.Workers)
	intFlag("iterations", &profile.Iterations)
	intFlag("permits", &profile.Permits)
	intFlag("parties", &profile.Parties)

	if flags.Changed("fair") {
		if profile.Fair, err = flags.GetBool("fair"); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if flags.Changed("timeout") {
		if profile.Timeout, err = flags.GetDuration("timeout"); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if flags.Changed("scenario") {
		if profile.Scenarios, err = flags.GetStringSlice("scenario"); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	args := &stressArgs{profile: profile}
	if args.output, err = flags.GetString("output"); err != nil {
		merr = multierror.Append(merr, err)
	} else if args.output != "table" && args.output != "json" {
		merr = multierror.Append(merr, fmt.Errorf("unknown output format %q", args.output))
	}
	if args.color, err = flags.GetString("color"); err != nil {
		merr = multierror.Append(merr, err)
	} else if args.color != "auto" && args.color != "always" && args.color != "never" {
		merr = multierror.Append(merr, fmt.Errorf("unknown color mode %q", args.color))
	}
	if args.sampleRate, err = flags.GetUint64("sample_rate"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if args.capture, err = flags.GetBool("stack_capture"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if args.metrics, err = flags.GetBool("metrics"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if args.prof.cpu, err = flags.GetString("cpuprofile"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if args.prof.block, err = flags.GetString("blockprofile"); err != nil {
		merr = multierror.Append(merr, err)
	}
	if args.prof.mutex, err = flags.GetString("mutexprofile"); err != nil {
		merr = multierror.Append(merr, err)
	}

	if err := profile.Validate(qsync.Version, stress.Names()); err != nil {
		merr = multierror.Append(merr, err)
	}

	if merr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, merr)
	}
	return args, nil
}

func runStress(cc *cobra.Command, _ []string) (err error) {
	args, err := parseStressArgs(cc)
	if err != nil {
		return err
	}

	if err := args.prof.start(); err != nil {
		return err
	}
	defer func() {
		if perr := args.prof.stop(); perr != nil {
			err = multierror.Append(err, perr)
		}
	}()

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	runner := stress.NewRunner(args.profile,
		stress.WithLogger(slog.Default()),
		stress.WithCollector(collector),
		stress.WithStatsSampling(args.sampleRate),
		stress.WithStackCapture(args.capture),
	)
	rep, runErr := runner.Run(cc.Context())
	if rep == nil {
		return fmt.Errorf("%w: %w", ErrStressFailed, runErr)
	}

	out := cc.OutOrStdout()
	switch args.output {
	case "json":
		err = rep.WriteJSON(out)
	default:
		err = rep.Render(out, useColor(args.color, out))
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if args.metrics {
		if err := metrics.WriteText(out, reg); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("%w: %d of %d scenarios: %w",
			ErrStressFailed, rep.Failed(), len(rep.Results), runErr)
	}
	return nil
}

// useColor resolves a --color mode for w.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
