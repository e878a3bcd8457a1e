// Package recovery classifies failure symptoms into patterns and selects
// corrective actions for the agent loop.
package recovery

import (
	"fmt"
	"math"
	"time"
)

// SymptomKind identifies the failure taxonomy member a symptom belongs to.
type SymptomKind string

const (
	SymptomToolExecutionFailure SymptomKind = "tool_execution_failure"
	SymptomValidationFailure    SymptomKind = "validation_failure"
	SymptomStagnationFailure    SymptomKind = "stagnation_failure"
	SymptomBudgetExhaustion     SymptomKind = "budget_exhaustion"
	SymptomTimeout              SymptomKind = "timeout"
	SymptomUnknown              SymptomKind = "unknown"
)

// Symptom is one observed failure, supplied by the orchestrator each time a
// failure occurs. Only the fields for the symptom's kind are meaningful.
type Symptom struct {
	Kind SymptomKind

	Tool                string // ToolExecutionFailure
	ConsecutiveFailures int    // ToolExecutionFailure

	Score     float64 // ValidationFailure
	Threshold float64 // ValidationFailure

	IterationsStagnant int // StagnationFailure

	Used      int // BudgetExhaustion
	Allocated int // BudgetExhaustion

	Operation string // Timeout
}

// ToolFailure builds a ToolExecutionFailure symptom.
func ToolFailure(tool string, consecutive int) Symptom {
	return Symptom{Kind: SymptomToolExecutionFailure, Tool: tool, ConsecutiveFailures: consecutive}
}

// ValidationFailure builds a ValidationFailure symptom.
func ValidationFailure(score, threshold float64) Symptom {
	return Symptom{Kind: SymptomValidationFailure, Score: score, Threshold: threshold}
}

// StagnationFailure builds a StagnationFailure symptom.
func StagnationFailure(iterationsStagnant int) Symptom {
	return Symptom{Kind: SymptomStagnationFailure, IterationsStagnant: iterationsStagnant}
}

// BudgetExhaustion builds a BudgetExhaustion symptom.
func BudgetExhaustion(used, allocated int) Symptom {
	return Symptom{Kind: SymptomBudgetExhaustion, Used: used, Allocated: allocated}
}

// Timeout builds a Timeout symptom for the named operation.
func Timeout(operation string) Symptom {
	return Symptom{Kind: SymptomTimeout, Operation: operation}
}

// Unknown builds an Unknown symptom.
func Unknown() Symptom {
	return Symptom{Kind: SymptomUnknown}
}

// Pattern is a symptom classified against its occurrence history.
type Pattern struct {
	Symptom     Symptom
	Key         string // Tool name for tool failures, kind otherwise
	Occurrences int    // Occurrences of this key within the task execution
	Repeated    bool   // Crossed the MaxStrategyAttempts threshold
}

// ActionKind identifies a corrective strategy.
type ActionKind string

const (
	ActionRetryWithBackoff   ActionKind = "retry_with_backoff"
	ActionRotateStrategy     ActionKind = "rotate_strategy"
	ActionRelaxValidation    ActionKind = "relax_validation"
	ActionReassessComplexity ActionKind = "reassess_complexity"
	ActionSimplifyApproach   ActionKind = "simplify_approach"
	ActionAbort              ActionKind = "abort"
)

// Action is the corrective action selected for a pattern. Only the fields
// for the action's kind are meaningful.
type Action struct {
	Kind         ActionKind
	Delay        time.Duration // RetryWithBackoff
	NewThreshold float64       // RelaxValidation
	Reason       string        // Abort
}

// Config holds the recovery tuning knobs.
type Config struct {
	// MaxStrategyAttempts separates "first/low-count" from "repeated"
	// classification. Must be strictly positive.
	MaxStrategyAttempts int
	// Backoff schedule for RetryWithBackoff. Delay grows exponentially
	// with occurrence count and is capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RelaxStep is subtracted from the current validation threshold by
	// RelaxValidation; ThresholdFloor bounds how far it can drop.
	RelaxStep      float64
	ThresholdFloor float64
}

// DefaultConfig returns the standard recovery configuration.
func DefaultConfig() Config {
	return Config{
		MaxStrategyAttempts: 3,
		InitialDelay:        500 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		Multiplier:          2.0,
		RelaxStep:           0.1,
		ThresholdFloor:      0.5,
	}
}

// Recovery tracks failure-pattern history for one task execution and maps
// classified patterns to corrective actions. Not safe for concurrent use.
type Recovery struct {
	cfg    Config
	counts map[string]int
}

// New validates the configuration and returns a recovery instance.
func New(cfg Config) (*Recovery, error) {
	if cfg.MaxStrategyAttempts <= 0 {
		return nil, fmt.Errorf("recovery: max strategy attempts must be positive, got %d", cfg.MaxStrategyAttempts)
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 10 * time.Second
	}
	return &Recovery{cfg: cfg, counts: make(map[string]int)}, nil
}

// DetectPattern classifies a symptom against the running occurrence count
// for its distinguishing key. Counts persist across calls within one task
// execution and reset only via Reset.
func (r *Recovery) DetectPattern(symptom Symptom) Pattern {
	key := patternKey(symptom)
	r.counts[key]++
	occurrences := r.counts[key]

	// Tool failures carry their own consecutive-failure count from the
	// orchestrator; classification uses whichever signal is stronger.
	effective := occurrences
	if symptom.Kind == SymptomToolExecutionFailure && symptom.ConsecutiveFailures > effective {
		effective = symptom.ConsecutiveFailures
	}

	return Pattern{
		Symptom:     symptom,
		Key:         key,
		Occurrences: occurrences,
		Repeated:    effective >= r.cfg.MaxStrategyAttempts,
	}
}

// SelectAction maps a classified pattern to a corrective action.
func (r *Recovery) SelectAction(p Pattern) Action {
	switch p.Symptom.Kind {
	case SymptomToolExecutionFailure:
		if !p.Repeated {
			return r.retryWithBackoff(p.Occurrences)
		}
		// Same tool kept failing after a strategy rotation: give up.
		if p.Occurrences > 2*r.cfg.MaxStrategyAttempts {
			return Action{Kind: ActionAbort, Reason: fmt.Sprintf("tool %s failed %d times", p.Symptom.Tool, p.Occurrences)}
		}
		return Action{Kind: ActionRotateStrategy}

	case SymptomValidationFailure:
		switch {
		case p.Occurrences == 1:
			return Action{
				Kind:         ActionRelaxValidation,
				NewThreshold: r.relaxedThreshold(p.Symptom.Threshold),
			}
		case p.Occurrences == 2:
			return Action{Kind: ActionRotateStrategy}
		default:
			return Action{Kind: ActionReassessComplexity}
		}

	case SymptomStagnationFailure:
		if !p.Repeated {
			return Action{Kind: ActionRotateStrategy}
		}
		return Action{Kind: ActionSimplifyApproach}

	case SymptomBudgetExhaustion:
		if !p.Repeated {
			if p.Occurrences == 1 {
				return Action{Kind: ActionReassessComplexity}
			}
			return Action{Kind: ActionSimplifyApproach}
		}
		return Action{
			Kind:   ActionAbort,
			Reason: fmt.Sprintf("budget exhausted repeatedly (%d/%d iterations)", p.Symptom.Used, p.Symptom.Allocated),
		}

	case SymptomTimeout:
		switch {
		case p.Occurrences == 1:
			return r.retryWithBackoff(p.Occurrences)
		case p.Occurrences == 2:
			return Action{Kind: ActionRotateStrategy}
		default:
			return Action{Kind: ActionSimplifyApproach}
		}

	default:
		if !p.Repeated {
			return r.retryWithBackoff(p.Occurrences)
		}
		return Action{Kind: ActionRotateStrategy}
	}
}

// Counts returns the occurrence count recorded for a key. Used by the
// orchestrator when reporting pattern history.
func (r *Recovery) Counts(key string) int { return r.counts[key] }

// Reset clears all pattern history, equivalent to recreating the instance.
func (r *Recovery) Reset() {
	r.counts = make(map[string]int)
}

// retryWithBackoff computes the capped exponential delay for an attempt.
func (r *Recovery) retryWithBackoff(attempt int) Action {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	return Action{Kind: ActionRetryWithBackoff, Delay: time.Duration(delay)}
}

func (r *Recovery) relaxedThreshold(current float64) float64 {
	relaxed := current - r.cfg.RelaxStep
	if relaxed < r.cfg.ThresholdFloor {
		relaxed = r.cfg.ThresholdFloor
	}
	return relaxed
}

func patternKey(s Symptom) string {
	if s.Kind == SymptomToolExecutionFailure && s.Tool != "" {
		return "tool:" + s.Tool
	}
	return string(s.Kind)
}
