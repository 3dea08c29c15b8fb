// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads stress profiles.
//
// A profile is a YAML document naming the scenarios to run and the load to
// put on them:
//
//	min_version: v0.1.0
//	workers: 8
//	iterations: 2000
//	fair: true
//	timeout: 30s
//	scenarios: [mutex, semaphore, cancel-churn]
//	permits: 3
//	parties: 4
//
// Command line flags override profile values field by field.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrVersionTooOld  = errors.New("library version too old")
)

// Defaults applied to zero fields by Load and Default.
const (
	DefaultWorkers    = 8
	DefaultIterations = 1000
	DefaultTimeout    = time.Minute
	DefaultPermits    = 3
	DefaultParties    = 4
)

// Profile describes one stress run.
type Profile struct {
	// MinVersion, when set, is the oldest library version the profile was
	// written for.
	MinVersion string `yaml:"min_version,omitempty"`

	Workers    int           `yaml:"workers"`
	Iterations int           `yaml:"iterations"`
	Fair       bool          `yaml:"fair"`
	Timeout    time.Duration `yaml:"timeout"`
	Scenarios  []string      `yaml:"scenarios,omitempty"`

	// Permits sizes the semaphore scenario.
	Permits int `yaml:"permits"`
	// Parties sizes the barrier scenario.
	Parties int `yaml:"parties"`
}

// Default returns a profile with every field at its default and no scenario
// filter.
func Default() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

// Load reads a profile from path.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode reads a profile from r. Unknown keys are rejected.
func Decode(r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	p := &Profile{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}
	p.applyDefaults()
	return p, nil
}

// Encode writes p as YAML.
func (p *Profile) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return enc.Close()
}

func (p *Profile) applyDefaults() {
	if p.Workers == 0 {
		p.Workers = DefaultWorkers
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultIterations
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Permits == 0 {
		p.Permits = DefaultPermits
	}
	if p.Parties == 0 {
		p.Parties = DefaultParties
	}
}

// Validate checks p against the running library version and the set of
// known scenario names. All problems are reported together.
func (p *Profile) Validate(libVersion string, known []string) error {
	var merr error

	if p.Workers < 1 {
		merr = multierror.Append(merr, fmt.Errorf("workers must be positive, got %d", p.Workers))
	}
	if p.Iterations < 1 {
		merr = multierror.Append(merr, fmt.Errorf("iterations must be positive, got %d", p.Iterations))
	}
	if p.Timeout < 0 {
		merr = multierror.Append(merr, fmt.Errorf("timeout must not be negative, got %s", p.Timeout))
	}
	if p.Permits < 1 || p.Permits > 0xFFFF {
		merr = multierror.Append(merr, fmt.Errorf("permits must be in [1, 65535], got %d", p.Permits))
	}
	if p.Parties < 1 {
		merr = multierror.Append(merr, fmt.Errorf("parties must be positive, got %d", p.Parties))
	}
	for _, name := range p.Scenarios {
		if !slices.Contains(known, name) {
			merr = multierror.Append(merr, fmt.Errorf("unknown scenario %q", name))
		}
	}
	if err := checkVersion(p.MinVersion, libVersion); err != nil {
		merr = multierror.Append(merr, err)
	}

	if merr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, merr)
	}
	return nil
}

func checkVersion(minVersion, libVersion string) error {
	if minVersion == "" {
		return nil
	}
	minVersion = canonical(minVersion)
	if !semver.IsValid(minVersion) {
		return fmt.Errorf("min_version %q is not a semantic version", minVersion)
	}
	libVersion = canonical(libVersion)
	if semver.Compare(libVersion, minVersion) < 0 {
		return fmt.Errorf("%w: profile needs %s, running %s", ErrVersionTooOld, minVersion, libVersion)
	}
	return nil
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}
