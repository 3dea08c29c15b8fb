// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stress runs workloads against the locks in internal/locks and
// checks that each lock keeps its invariant under contention.
//
// Every scenario builds its own synchronizers, fans out workers with an
// errgroup and verifies its invariant once the workers are done. A Runner
// executes the scenarios selected by a config.Profile in order and collects
// a Result per scenario into a Report.
package stress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/iancoleman/strcase"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/config"
	"github.com/kolkov/qsync/internal/metrics"
)

// Env is the load a scenario runs with.
type Env struct {
	Workers    int
	Iterations int
	Fair       bool
	Timeout    time.Duration
	Permits    int
	Parties    int

	scenario  string
	base      []aqs.Option
	collector *metrics.Collector

	// sources are the synchronizers the scenario registered, in order.
	// Scenarios register before fanning out, so no locking is needed.
	sources []metrics.Source
}

func (e *Env) label(role string) string {
	if role == e.scenario {
		return role
	}
	return e.scenario + "/" + role
}

// options returns the synchronizer options for a synchronizer playing role.
func (e *Env) options(role string) []aqs.Option {
	return append(slices.Clone(e.base), aqs.WithName(e.label(role)))
}

// track records src for the result counters and the metrics collector.
func (e *Env) track(role string, src metrics.Source) {
	e.sources = append(e.sources, src)
	if e.collector == nil {
		return
	}
	key := e.scenario
	if role != e.scenario {
		key += " " + role
	}
	e.collector.Register(strcase.ToSnake(key), src)
}

func (e *Env) stats() aqs.Stats {
	return sourceSet(e.sources).Stats()
}

// sourceSet reports the summed counters of several synchronizers.
type sourceSet []metrics.Source

// Stats implements metrics.Source.
func (ss sourceSet) Stats() aqs.Stats {
	var sum aqs.Stats
	for _, src := range ss {
		st := src.Stats()
		sum.FastAcquires += st.FastAcquires
		sum.SlowAcquires += st.SlowAcquires
		sum.Parks += st.Parks
		sum.Cancellations += st.Cancellations
		sum.Timeouts += st.Timeouts
		sum.Interrupts += st.Interrupts
		sum.Signals += st.Signals
		sum.Transfers += st.Transfers
	}
	return sum
}

// QueueLength implements metrics.Source.
func (ss sourceSet) QueueLength() int {
	n := 0
	for _, src := range ss {
		n += src.QueueLength()
	}
	return n
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario string
	Ops      int64
	Duration time.Duration
	Stats    aqs.Stats
	Err      error
}

// Passed reports whether the scenario finished without error.
func (r Result) Passed() bool { return r.Err == nil }

// Report collects the results of one run.
type Report struct {
	RunID   uuid.UUID
	Started time.Time
	Fair    bool
	Results []Result
}

// Failed returns the number of failed scenarios.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed() {
			n++
		}
	}
	return n
}

// Runner executes stress scenarios.
type Runner struct {
	profile    *config.Profile
	logger     *slog.Logger
	collector  *metrics.Collector
	sampleRate uint64
	capture    bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for run progress and for the synchronizers.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCollector registers every synchronizer the scenarios create with c.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) { r.collector = c }
}

// WithStatsSampling sets the fast-path sampling rate of the synchronizers.
// The default of 1 counts every acquire.
func WithStatsSampling(rate uint64) Option {
	return func(r *Runner) { r.sampleRate = rate }
}

// WithStackCapture turns on waiter stack capture in the synchronizers.
func WithStackCapture(enabled bool) Option {
	return func(r *Runner) { r.capture = enabled }
}

// NewRunner returns a Runner for p. p must already be validated.
func NewRunner(p *config.Profile, opts ...Option) *Runner {
	r := &Runner{
		profile:    p,
		logger:     slog.Default(),
		sampleRate: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// selected returns the scenarios named by the profile, or all of them.
func (r *Runner) selected() ([]Scenario, error) {
	if len(r.profile.Scenarios) == 0 {
		return Scenarios(), nil
	}
	var (
		out  []Scenario
		merr error
	)
	for _, name := range r.profile.Scenarios {
		sc, ok := Lookup(name)
		if !ok {
			merr = multierror.Append(merr, fmt.Errorf("unknown scenario %q", name))
			continue
		}
		out = append(out, sc)
	}
	return out, merr
}

// Run executes the selected scenarios one after another. The returned
// Report is complete even when scenarios fail; the error aggregates every
// failure.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	scs, err := r.selected()
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:   uuid.New(),
		Started: time.Now(),
		Fair:    r.profile.Fair,
	}
	logger := r.logger.With("run_id", rep.RunID.String())
	logger.Info("stress run started",
		"scenarios", len(scs),
		"workers", r.profile.Workers,
		"iterations", r.profile.Iterations,
		"fair", r.profile.Fair)

	var merr error
	for _, sc := range scs {
		res := r.runOne(ctx, sc, logger)
		rep.Results = append(rep.Results, res)
		if res.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", sc.Name, res.Err))
		}
	}
	if merr != nil {
		return rep, merr
	}
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, sc Scenario, logger *slog.Logger) Result {
	p := r.profile
	env := &Env{
		Workers:    p.Workers,
		Iterations: p.Iterations,
		Fair:       p.Fair,
		Timeout:    p.Timeout,
		Permits:    p.Permits,
		Parties:    p.Parties,
		scenario:   sc.Name,
		collector:  r.collector,
		base: []aqs.Option{
			aqs.WithLogger(logger.With("scenario", sc.Name)),
			aqs.WithStatsSampling(r.sampleRate),
			aqs.WithStackCapture(r.capture),
		},
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	ops, err := sc.Run(ctx, env)
	res := Result{
		Scenario: sc.Name,
		Ops:      ops,
		Duration: time.Since(start),
		Stats:    env.stats(),
		Err:      err,
	}

	attrs := []any{
		"scenario", sc.Name,
		"ops", res.Ops,
		"duration", res.Duration,
		"parks", res.Stats.Parks,
		"cancellations", res.Stats.Cancellations,
	}
	if err != nil {
		logger.Error("scenario failed", append(attrs, "err", err)...)
	} else {
		logger.Info("scenario passed", attrs...)
	}
	return res
}
