package recovery

import (
	"testing"
	"time"
)

func newTestRecovery(t *testing.T) *Recovery {
	t.Helper()
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStrategyAttempts = 0
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted zero MaxStrategyAttempts")
	}
}

func TestToolFailureFirstOccurrenceRetries(t *testing.T) {
	r := newTestRecovery(t)

	p := r.DetectPattern(ToolFailure("run_cmd", 1))
	if p.Repeated {
		t.Error("first tool failure classified as repeated")
	}

	action := r.SelectAction(p)
	if action.Kind != ActionRetryWithBackoff {
		t.Errorf("action = %v, want %v", action.Kind, ActionRetryWithBackoff)
	}
	if action.Delay <= 0 {
		t.Errorf("Delay = %v, want positive", action.Delay)
	}
}

func TestToolFailureRepeatedRotatesOrAborts(t *testing.T) {
	r := newTestRecovery(t)

	// consecutive_failures of 3 meets MaxStrategyAttempts (3).
	p := r.DetectPattern(ToolFailure("run_cmd", 3))
	if !p.Repeated {
		t.Fatal("three consecutive failures should classify as repeated")
	}

	action := r.SelectAction(p)
	if action.Kind != ActionRotateStrategy && action.Kind != ActionAbort {
		t.Errorf("action = %v, want rotate or abort", action.Kind)
	}
}

func TestToolFailureEventuallyAborts(t *testing.T) {
	r := newTestRecovery(t)

	var last Action
	for i := 0; i < 10; i++ {
		p := r.DetectPattern(ToolFailure("search_replace", i+1))
		last = r.SelectAction(p)
		if last.Kind == ActionAbort {
			break
		}
	}
	if last.Kind != ActionAbort {
		t.Errorf("sustained failures of one tool never aborted, last action %v", last.Kind)
	}
	if last.Reason == "" {
		t.Error("abort action should carry a reason")
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStrategyAttempts = 100 // keep every occurrence in the retry row
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var prev time.Duration
	for i := 0; i < 12; i++ {
		action := r.SelectAction(r.DetectPattern(Unknown()))
		if action.Kind != ActionRetryWithBackoff {
			t.Fatalf("occurrence %d: action = %v, want retry under high attempt ceiling", i+1, action.Kind)
		}
		if action.Delay < prev {
			t.Errorf("backoff shrank: %v after %v", action.Delay, prev)
		}
		if action.Delay > cfg.MaxDelay {
			t.Errorf("Delay = %v exceeds cap %v", action.Delay, cfg.MaxDelay)
		}
		prev = action.Delay
	}
	if prev != cfg.MaxDelay {
		t.Errorf("backoff never reached cap: last delay %v, cap %v", prev, cfg.MaxDelay)
	}
}

func TestValidationFailureEscalation(t *testing.T) {
	r := newTestRecovery(t)

	first := r.SelectAction(r.DetectPattern(ValidationFailure(0.6, 0.8)))
	if first.Kind != ActionRelaxValidation {
		t.Errorf("first validation failure = %v, want %v", first.Kind, ActionRelaxValidation)
	}
	if first.NewThreshold >= 0.8 {
		t.Errorf("NewThreshold = %v, want below current threshold", first.NewThreshold)
	}

	second := r.SelectAction(r.DetectPattern(ValidationFailure(0.6, 0.7)))
	if second.Kind != ActionRotateStrategy {
		t.Errorf("second validation failure = %v, want %v", second.Kind, ActionRotateStrategy)
	}

	third := r.SelectAction(r.DetectPattern(ValidationFailure(0.6, 0.7)))
	if third.Kind != ActionReassessComplexity {
		t.Errorf("third validation failure = %v, want %v", third.Kind, ActionReassessComplexity)
	}
}

func TestRelaxValidationFloor(t *testing.T) {
	r := newTestRecovery(t)
	action := r.SelectAction(r.DetectPattern(ValidationFailure(0.3, 0.5)))
	if action.Kind != ActionRelaxValidation {
		t.Fatalf("action = %v", action.Kind)
	}
	if action.NewThreshold < DefaultConfig().ThresholdFloor {
		t.Errorf("NewThreshold = %v dropped below floor %v", action.NewThreshold, DefaultConfig().ThresholdFloor)
	}
}

func TestStagnationEscalatesToSimplify(t *testing.T) {
	r := newTestRecovery(t)

	first := r.SelectAction(r.DetectPattern(StagnationFailure(4)))
	if first.Kind != ActionRotateStrategy {
		t.Errorf("first stagnation = %v, want %v", first.Kind, ActionRotateStrategy)
	}

	r.DetectPattern(StagnationFailure(5))
	repeated := r.SelectAction(r.DetectPattern(StagnationFailure(6)))
	if repeated.Kind != ActionSimplifyApproach {
		t.Errorf("repeated stagnation = %v, want %v", repeated.Kind, ActionSimplifyApproach)
	}
}

func TestBudgetExhaustionAbortsWhenRepeated(t *testing.T) {
	r := newTestRecovery(t)

	first := r.SelectAction(r.DetectPattern(BudgetExhaustion(20, 20)))
	if first.Kind != ActionReassessComplexity {
		t.Errorf("first budget exhaustion = %v, want %v", first.Kind, ActionReassessComplexity)
	}

	r.DetectPattern(BudgetExhaustion(30, 30))
	repeated := r.SelectAction(r.DetectPattern(BudgetExhaustion(40, 40)))
	if repeated.Kind != ActionAbort {
		t.Errorf("repeated budget exhaustion = %v, want %v", repeated.Kind, ActionAbort)
	}
}

func TestUnknownSymptomHasSafeFallback(t *testing.T) {
	r := newTestRecovery(t)
	action := r.SelectAction(r.DetectPattern(Unknown()))
	switch action.Kind {
	case ActionRetryWithBackoff, ActionRotateStrategy, ActionRelaxValidation,
		ActionReassessComplexity, ActionSimplifyApproach:
	default:
		t.Errorf("unknown symptom selected %v, want a non-abort fallback", action.Kind)
	}
}

func TestCountsTrackedPerTool(t *testing.T) {
	r := newTestRecovery(t)
	r.DetectPattern(ToolFailure("grep", 1))
	r.DetectPattern(ToolFailure("grep", 2))
	r.DetectPattern(ToolFailure("read_file", 1))

	if got := r.Counts("tool:grep"); got != 2 {
		t.Errorf("Counts(tool:grep) = %d, want 2", got)
	}
	if got := r.Counts("tool:read_file"); got != 1 {
		t.Errorf("Counts(tool:read_file) = %d, want 1", got)
	}
}

func TestResetClearsHistory(t *testing.T) {
	r := newTestRecovery(t)
	r.DetectPattern(ToolFailure("grep", 1))
	r.Reset()
	if got := r.Counts("tool:grep"); got != 0 {
		t.Errorf("Counts after Reset = %d, want 0", got)
	}
}
