// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stress

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/iancoleman/strcase"

	"github.com/kolkov/qsync/internal/aqs"
)

// Render writes r as a table. Colour is used only when color is set and w
// supports it.
func (r *Report) Render(w io.Writer, color bool) error {
	re := lipgloss.NewRenderer(w)

	var (
		header  = re.NewStyle().Padding(0, 1)
		cell    = re.NewStyle().Padding(0, 1)
		number  = re.NewStyle().Padding(0, 1).Align(lipgloss.Right)
		border  = re.NewStyle()
		passed  = re.NewStyle().SetString("✓")
		failed  = re.NewStyle().SetString("✗")
		summary = re.NewStyle()
	)
	if color {
		header = header.Bold(true).Foreground(lipgloss.Color("63"))
		border = border.Foreground(lipgloss.Color("240"))
		passed = passed.Foreground(lipgloss.Color("42"))
		failed = failed.Foreground(lipgloss.Color("196"))
		summary = summary.Faint(true)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(border).
		Headers("SCENARIO", "RESULT", "OPS", "DURATION", "FAST", "SLOW", "PARKS", "CANCELLED").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col >= 2:
				return number
			default:
				return cell
			}
		})

	for _, res := range r.Results {
		mark := passed.String()
		if !res.Passed() {
			mark = failed.String()
		}
		t.Row(
			res.Scenario,
			mark,
			strconv.FormatInt(res.Ops, 10),
			res.Duration.Round(time.Microsecond).String(),
			strconv.FormatUint(res.Stats.FastAcquires, 10),
			strconv.FormatUint(res.Stats.SlowAcquires, 10),
			strconv.FormatUint(res.Stats.Parks, 10),
			strconv.FormatUint(res.Stats.Cancellations, 10),
		)
	}

	fairness := "non-fair"
	if r.Fair {
		fairness = "fair"
	}
	if _, err := fmt.Fprintln(w, summary.Render(fmt.Sprintf("run %s (%s)", r.RunID, fairness))); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	for _, res := range r.Results {
		if res.Err != nil {
			if _, err := fmt.Fprintf(w, "%s %s: %v\n", failed, res.Scenario, res.Err); err != nil {
				return err
			}
		}
	}
	return nil
}

type jsonReport struct {
	RunID   string       `json:"run_id"`
	Started time.Time    `json:"started"`
	Fair    bool         `json:"fair"`
	Failed  int          `json:"failed"`
	Results []jsonResult `json:"results"`
}

type jsonResult struct {
	Scenario   string            `json:"scenario"`
	Passed     bool              `json:"passed"`
	Error      string            `json:"error,omitempty"`
	Ops        int64             `json:"ops"`
	DurationMS float64           `json:"duration_ms"`
	Stats      map[string]uint64 `json:"stats"`
}

// WriteJSON writes r as an indented JSON document.
func (r *Report) WriteJSON(w io.Writer) error {
	out := jsonReport{
		RunID:   r.RunID.String(),
		Started: r.Started,
		Fair:    r.Fair,
		Failed:  r.Failed(),
		Results: make([]jsonResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		jr := jsonResult{
			Scenario:   res.Scenario,
			Passed:     res.Passed(),
			Ops:        res.Ops,
			DurationMS: float64(res.Duration) / float64(time.Millisecond),
			Stats:      statsMap(res.Stats),
		}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// statsMap keys the counters by their snake_case field names.
func statsMap(st aqs.Stats) map[string]uint64 {
	fields := []struct {
		name  string
		value uint64
	}{
		{"FastAcquires", st.FastAcquires},
		{"SlowAcquires", st.SlowAcquires},
		{"Parks", st.Parks},
		{"Cancellations", st.Cancellations},
		{"Timeouts", st.Timeouts},
		{"Interrupts", st.Interrupts},
		{"Signals", st.Signals},
		{"Transfers", st.Transfers},
	}
	m := make(map[string]uint64, len(fields))
	for _, f := range fields {
		m[strcase.ToSnake(f.name)] = f.value
	}
	return m
}
