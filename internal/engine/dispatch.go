package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DispatchResult carries the outcome of a single tool call.
type DispatchResult struct {
	Call     ToolCall
	Output   string
	Err      error
	Duration time.Duration
	ExitCode int
}

// Success reports whether the call completed without error and, for
// execution tools, exited zero.
func (r DispatchResult) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Dispatcher runs the tool calls requested by the model. Calls run
// strictly in order: later calls routinely depend on the side effects of
// earlier ones, and the ordering keeps transcripts reproducible.
type Dispatcher struct {
	registry    *ToolRegistry
	retryConfig RetryConfig
	callTimeout time.Duration
	hooks       Hooks
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *ToolRegistry, retryConfig RetryConfig, callTimeout time.Duration, hooks Hooks) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Dispatcher{
		registry:    registry,
		retryConfig: retryConfig,
		callTimeout: callTimeout,
		hooks:       hooks,
	}
}

// Dispatch executes each tool call in sequence and returns one result per
// call, in the same order. A failing call does not stop the batch; its
// result carries the error and the remaining calls still run, so the
// model sees the full picture on the next turn.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []ToolCall) []DispatchResult {
	results := make([]DispatchResult, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			results = append(results, DispatchResult{Call: call, Err: err})
			continue
		}
		results = append(results, d.executeOne(ctx, call))
	}
	return results
}

func (d *Dispatcher) executeOne(ctx context.Context, call ToolCall) DispatchResult {
	start := time.Now()

	if call.Error != "" {
		return DispatchResult{
			Call:     call,
			Err:      fmt.Errorf("malformed tool call: %s", call.Error),
			Duration: time.Since(start),
			ExitCode: 1,
		}
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return DispatchResult{
			Call:     call,
			Err:      fmt.Errorf("unknown tool: %s", call.Name),
			Duration: time.Since(start),
			ExitCode: 1,
		}
	}

	if err := ValidateArgs(tool, call.Args); err != nil {
		return DispatchResult{
			Call:     call,
			Err:      err,
			Duration: time.Since(start),
			ExitCode: 1,
		}
	}

	d.hooks.OnToolCall(call.Name, call.Args)

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	output, err := RetryToolCall(callCtx, d.retryConfig, tool.Retryable(),
		func(attempt int, delay time.Duration, attemptErr error) {
			d.hooks.OnRetryAttempt("tool:"+call.Name, attempt, delay, attemptErr)
		},
		func(ctx context.Context) (string, error) {
			return tool.Execute(ctx, call.Args)
		})

	result := DispatchResult{
		Call:     call,
		Output:   output,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		result.ExitCode = 1
		if IsRetryExhausted(err) {
			d.hooks.OnRetryExhausted("tool:"+call.Name, err)
		}
	} else {
		result.ExitCode = extractExitCode(output)
	}

	d.hooks.OnToolResult(call.Name, output, err, result.Duration)
	return result
}

// extractExitCode pulls the exit code out of an execution tool's JSON
// output. Non-execution tools return plain text and report 0.
func extractExitCode(output string) int {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") {
		return 0
	}
	var exec ExecutionResult
	if err := json.Unmarshal([]byte(trimmed), &exec); err != nil {
		return 0
	}
	if exec.TimedOut {
		return 124
	}
	return exec.ExitCode
}
