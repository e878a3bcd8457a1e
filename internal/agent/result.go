package agent

import "time"

// Result is the outcome of one task execution.
type Result struct {
	TaskID          string
	Success         bool
	Output          string // final assistant answer, or failure reason
	Duration        time.Duration
	Iterations      int
	FilesTouched    []string
	ValidationScore float64
	EarlySuccess    bool // finished before the allocated budget
}

// SuccessResult builds a successful result.
func SuccessResult(taskID, output string, iterations int, score float64) Result {
	return Result{
		TaskID:          taskID,
		Success:         true,
		Output:          output,
		Iterations:      iterations,
		ValidationScore: score,
	}
}

// FailureResult builds a failed result with a reason.
func FailureResult(taskID, reason string, iterations int, score float64) Result {
	return Result{
		TaskID:          taskID,
		Success:         false,
		Output:          reason,
		Iterations:      iterations,
		ValidationScore: score,
	}
}

// WithEarlySuccess marks the result as finishing under budget.
func (r Result) WithEarlySuccess() Result {
	r.EarlySuccess = true
	return r
}
