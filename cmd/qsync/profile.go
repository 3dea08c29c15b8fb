// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/hashicorp/go-multierror"
)

// profiler writes the runtime profiles requested on the command line.
type profiler struct {
	cpu, block, mutex string

	cpuFile *os.File
}

func (p *profiler) start() error {
	if p.cpu != "" {
		f, err := os.Create(p.cpu)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		p.cpuFile = f
	}
	if p.block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if p.mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	return nil
}

func (p *profiler) stop() error {
	var merr error

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		p.cpuFile = nil
	}
	if p.block != "" {
		if err := writeProfile("block", p.block); err != nil {
			merr = multierror.Append(merr, err)
		}
		runtime.SetBlockProfileRate(0)
	}
	if p.mutex != "" {
		if err := writeProfile("mutex", p.mutex); err != nil {
			merr = multierror.Append(merr, err)
		}
		runtime.SetMutexProfileFraction(0)
	}

	return merr
}

func writeProfile(name, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile: %w", name, err)
	}
	if err := pprof.Lookup(name).WriteTo(f, 0); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s profile: %w", name, err)
	}
	return nil
}
