// Package validation scores batches of tool-execution outcomes against
// expected outputs.
package validation

import (
	"fmt"
	"strings"
	"time"
)

// ToolResult is the outcome of one tool execution as reported by the runtime.
type ToolResult struct {
	Tool     string        // Tool name
	Output   string        // Raw tool output
	Success  bool          // Whether the runtime reported success
	Duration time.Duration // Wall-clock execution time
	Error    string        // Error message if the tool failed
	ExitCode int           // Process exit code for execution tools (0 = ok)
}

// Check is a single named validation check and its outcome.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Score aggregates the checks evaluated for one validation call.
type Score struct {
	Overall     float64 // Fraction of checks passed, always in [0,1]
	TotalChecks int
	Checks      []Check
}

// FailedChecks returns the subset of checks that did not pass.
// It is a derived view; the check list itself is never mutated.
func (s Score) FailedChecks() []Check {
	var failed []Check
	for _, c := range s.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Report is the result of one orchestration call.
type Report struct {
	Validation    Score
	TotalAttempts int // Calls made on this orchestrator since construction or Reset
}

// errorMarkers are substrings that indicate a failed operation even when the
// runtime reported success (e.g. a build tool exiting 0 after printing errors).
var errorMarkers = []string{
	"ERROR:",
	"FATAL:",
	"panic:",
	"Traceback (most recent call last)",
}

// Orchestrator runs validation checks over tool outcomes and tracks how many
// validation attempts have been made for the current task execution.
// One orchestrator instance belongs to exactly one task execution.
type Orchestrator struct {
	attempts int
}

// NewOrchestrator returns an orchestrator with a zeroed attempt counter.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

// Orchestrate evaluates checks comparing tool outputs against expected
// outputs and combines them into an overall score. Empty inputs still
// produce a valid in-range score with at least one check evaluated.
// Failed tool results lower the score but never abort the call.
func (o *Orchestrator) Orchestrate(results []ToolResult, expected []string) Report {
	o.attempts++

	var checks []Check

	if len(results) == 0 {
		checks = append(checks, Check{
			Name:   "results_present",
			Passed: false,
			Detail: "no tool results to validate",
		})
	}

	for _, r := range results {
		checks = append(checks, Check{
			Name:   "tool_success:" + r.Tool,
			Passed: r.Success && r.ExitCode == 0,
			Detail: toolDetail(r),
		})
		checks = append(checks, Check{
			Name:   "no_error_markers:" + r.Tool,
			Passed: !containsErrorMarker(r.Output),
			Detail: firstMarker(r.Output),
		})
	}

	for i, want := range expected {
		checks = append(checks, Check{
			Name:   fmt.Sprintf("expected_output_%d", i),
			Passed: outputsContain(results, want),
			Detail: fmt.Sprintf("looking for %q", truncate(want, 60)),
		})
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}

	return Report{
		Validation: Score{
			Overall:     float64(passed) / float64(len(checks)),
			TotalChecks: len(checks),
			Checks:      checks,
		},
		TotalAttempts: o.attempts,
	}
}

// Attempts returns the number of orchestration calls since construction or Reset.
func (o *Orchestrator) Attempts() int { return o.attempts }

// Reset clears the attempt counter, used when a task execution starts a
// fresh planning cycle.
func (o *Orchestrator) Reset() { o.attempts = 0 }

func toolDetail(r ToolResult) string {
	if r.Error != "" {
		return r.Error
	}
	if r.ExitCode != 0 {
		return fmt.Sprintf("exit code %d", r.ExitCode)
	}
	return ""
}

func containsErrorMarker(output string) bool {
	return firstMarker(output) != ""
}

func firstMarker(output string) string {
	for _, m := range errorMarkers {
		if strings.Contains(output, m) {
			return m
		}
	}
	return ""
}

func outputsContain(results []ToolResult, want string) bool {
	for _, r := range results {
		if strings.Contains(r.Output, want) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
