// Package convergence tracks progress across agent iterations and decides
// when a task execution should terminate.
package convergence

import (
	"fmt"
	"math"
	"time"
)

// Condition is the outcome of a termination check. It is produced fresh on
// every check and never persisted.
type Condition string

const (
	ConditionNone            Condition = "none" // Keep iterating
	ConditionSuccess         Condition = "success"
	ConditionStagnation      Condition = "stagnation"
	ConditionBudgetExhausted Condition = "budget_exhausted"
	ConditionFailure         Condition = "failure"
)

// ProgressPoint is one recorded progress observation. Points are append-only;
// the detector never rewrites history.
type ProgressPoint struct {
	Iteration  int
	Value      float64 // Normalized [0,1] task completion estimate
	RecordedAt time.Time
}

// Velocity is the rate of change of progress over the most recent window.
// Positive values indicate improving progress, negative values regression.
type Velocity struct {
	Velocity float64
	Window   int // Number of points the trend was computed over
}

// Stagnation reports whether progress velocity has stayed below threshold
// for a run of consecutive recordings.
type Stagnation struct {
	Stagnant           bool
	IterationsStagnant int
}

// Config holds the detector's thresholds. All fields must be strictly
// positive; NewDetector rejects anything else.
type Config struct {
	SuccessThreshold      float64 // Progress and validation must both reach this for Success
	VelocityThreshold     float64 // |velocity| below this counts toward stagnation
	Window                int     // Sliding window size for velocity
	StagnationRunLength   int     // Consecutive sub-threshold recordings before flagging Stagnant
	MaxStagnantIterations int     // Run length at which CheckTermination returns Stagnation
}

// DefaultConfig returns conservative detector thresholds.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold:      0.8,
		VelocityThreshold:     0.01,
		Window:                4,
		StagnationRunLength:   3,
		MaxStagnantIterations: 6,
	}
}

// Detector maintains the progress time series for one task execution.
// Not safe for concurrent use; one instance per execution.
type Detector struct {
	cfg         Config
	points      []ProgressPoint
	stagnantRun int
}

// NewDetector validates the configuration and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.SuccessThreshold <= 0 {
		return nil, fmt.Errorf("convergence: success threshold must be positive, got %v", cfg.SuccessThreshold)
	}
	if cfg.VelocityThreshold <= 0 {
		return nil, fmt.Errorf("convergence: velocity threshold must be positive, got %v", cfg.VelocityThreshold)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("convergence: window must be positive, got %d", cfg.Window)
	}
	if cfg.StagnationRunLength <= 0 {
		return nil, fmt.Errorf("convergence: stagnation run length must be positive, got %d", cfg.StagnationRunLength)
	}
	if cfg.MaxStagnantIterations <= 0 {
		return nil, fmt.Errorf("convergence: max stagnant iterations must be positive, got %d", cfg.MaxStagnantIterations)
	}
	return &Detector{cfg: cfg}, nil
}

// RecordProgress appends a progress point for the given iteration.
// NaN and out-of-range values are clamped to [0,1]. The stagnation run
// counter advances on consecutive sub-threshold velocities and resets on
// any recording that breaks the run.
func (d *Detector) RecordProgress(value float64, iteration int) {
	if math.IsNaN(value) || value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	d.points = append(d.points, ProgressPoint{
		Iteration:  iteration,
		Value:      value,
		RecordedAt: time.Now(),
	})

	if v, ok := d.Velocity(); ok {
		if math.Abs(v.Velocity) < d.cfg.VelocityThreshold {
			d.stagnantRun++
		} else {
			d.stagnantRun = 0
		}
	}
}

// Velocity returns the linear trend over the most recent window of points:
// the slope between the oldest and newest point in the window. The second
// return value is false when fewer than 2 points exist.
func (d *Detector) Velocity() (Velocity, bool) {
	if len(d.points) < 2 {
		return Velocity{}, false
	}

	window := d.cfg.Window
	if window > len(d.points) {
		window = len(d.points)
	}

	oldest := d.points[len(d.points)-window]
	newest := d.points[len(d.points)-1]

	span := newest.Iteration - oldest.Iteration
	if span <= 0 {
		span = window - 1
	}

	return Velocity{
		Velocity: (newest.Value - oldest.Value) / float64(span),
		Window:   window,
	}, true
}

// DetectStagnation flags a stagnant execution once the sub-threshold
// velocity run reaches the configured run length.
func (d *Detector) DetectStagnation() Stagnation {
	return Stagnation{
		Stagnant:           d.stagnantRun >= d.cfg.StagnationRunLength,
		IterationsStagnant: d.stagnantRun,
	}
}

// CheckTermination evaluates the termination conditions in fixed priority
// order: budget exhaustion first, then success, then stagnation. Budget
// exhaustion always wins over a late success signal in the same call, and
// success is checked before stagnation so a task that just converged is not
// flagged stagnant.
func (d *Detector) CheckTermination(progress, validationScore float64, iteration, budget int) Condition {
	if iteration >= budget {
		return ConditionBudgetExhausted
	}
	if progress >= d.cfg.SuccessThreshold && validationScore >= d.cfg.SuccessThreshold {
		return ConditionSuccess
	}
	if d.stagnantRun > d.cfg.MaxStagnantIterations {
		return ConditionStagnation
	}
	return ConditionNone
}

// SuccessThreshold returns the active success threshold.
func (d *Detector) SuccessThreshold() float64 { return d.cfg.SuccessThreshold }

// SetSuccessThreshold replaces the success threshold for subsequent
// termination checks. Recovery uses this to relax validation; values
// outside (0,1] are ignored.
func (d *Detector) SetSuccessThreshold(v float64) {
	if v > 0 && v <= 1 {
		d.cfg.SuccessThreshold = v
	}
}

// History returns a read-only copy of the recorded progress points.
func (d *Detector) History() []ProgressPoint {
	out := make([]ProgressPoint, len(d.points))
	copy(out, d.points)
	return out
}

// StagnantRun returns the current consecutive sub-threshold run length.
func (d *Detector) StagnantRun() int { return d.stagnantRun }

// Reset clears all points and counters, used when starting a fresh planning
// cycle after recovery.
func (d *Detector) Reset() {
	d.points = nil
	d.stagnantRun = 0
}
