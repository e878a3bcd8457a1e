package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternlabs/tern/internal/budget"
	"github.com/ternlabs/tern/internal/convergence"
	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/recovery"
	"github.com/ternlabs/tern/internal/validation"
)

const defaultSystemPrompt = `You are an autonomous software task agent. You work in iterations:
plan, call tools to act on the workspace, then inspect the results.
Prefer small verifiable steps. When the task is complete, answer with a
short summary and stop calling tools.`

// Config holds the executor's knobs.
type Config struct {
	Model           string
	SystemPrompt    string
	Temperature     float32
	MaxOutputTokens int

	InferenceTimeout time.Duration
	ToolCallTimeout  time.Duration

	Retry       engine.RetryConfig
	Convergence convergence.Config
	Recovery    recovery.Config
}

// DefaultConfig returns executor defaults for the given model.
func DefaultConfig(model string) Config {
	return Config{
		Model:            model,
		SystemPrompt:     defaultSystemPrompt,
		Temperature:      0.2,
		MaxOutputTokens:  4096,
		InferenceTimeout: 3 * time.Minute,
		ToolCallTimeout:  2 * time.Minute,
		Retry:            engine.DefaultRetryConfig(),
		Convergence:      convergence.DefaultConfig(),
		Recovery:         recovery.DefaultConfig(),
	}
}

// Executor drives the closed loop for one task at a time: plan with the
// inference client, dispatch the requested tools, validate the results,
// record progress, then either finish or recover and plan again. All loop
// state lives on the stack of Run; an Executor can run tasks back to back
// but never concurrently.
type Executor struct {
	cfg        Config
	llm        engine.LLMClient
	registry   *engine.ToolRegistry
	dispatcher *engine.Dispatcher
	allocator  budget.Allocator
	hooks      engine.Hooks
	telemetry  Telemetry

	filesTouched func() []string
	recall       func(ctx context.Context, task Task) []string
	record       func(task Task, result Result)
}

// NewExecutor wires an executor over an inference client and a tool
// registry.
func NewExecutor(cfg Config, llm engine.LLMClient, registry *engine.ToolRegistry) (*Executor, error) {
	if llm == nil {
		return nil, fmt.Errorf("agent: inference client is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("agent: tool registry is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = 3 * time.Minute
	}
	if cfg.ToolCallTimeout <= 0 {
		cfg.ToolCallTimeout = 2 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = engine.DefaultRetryConfig()
	}
	if cfg.Convergence == (convergence.Config{}) {
		cfg.Convergence = convergence.DefaultConfig()
	}
	if cfg.Recovery == (recovery.Config{}) {
		cfg.Recovery = recovery.DefaultConfig()
	}

	e := &Executor{
		cfg:       cfg,
		llm:       llm,
		registry:  registry,
		allocator: budget.NewAllocator(),
		telemetry: NopTelemetry{},
	}
	e.dispatcher = engine.NewDispatcher(registry, cfg.Retry, cfg.ToolCallTimeout, nil)
	return e, nil
}

// WithHooks attaches engine hooks (inference and tool observability).
func (e *Executor) WithHooks(hooks ...engine.Hook) *Executor {
	e.hooks = hooks
	e.dispatcher = engine.NewDispatcher(e.registry, e.cfg.Retry, e.cfg.ToolCallTimeout, e.hooks)
	return e
}

// WithTelemetry attaches loop-level telemetry.
func (e *Executor) WithTelemetry(t Telemetry) *Executor {
	if t != nil {
		e.telemetry = t
	}
	return e
}

// WithAllocator replaces the default budget allocator.
func (e *Executor) WithAllocator(a budget.Allocator) *Executor {
	e.allocator = a
	return e
}

// WithFilesTouched sets the callback that reports workspace files
// modified during the run, usually a workspace.Tracker.
func (e *Executor) WithFilesTouched(fn func() []string) *Executor {
	e.filesTouched = fn
	return e
}

// WithRecall sets the callback that surfaces prior episode summaries
// into the planning context.
func (e *Executor) WithRecall(fn func(ctx context.Context, task Task) []string) *Executor {
	e.recall = fn
	return e
}

// WithEpisodeRecorder sets the callback invoked once per finished run.
func (e *Executor) WithEpisodeRecorder(fn func(task Task, result Result)) *Executor {
	e.record = fn
	return e
}

// Run executes the task to completion or failure. The returned error is
// non-nil only for infrastructure-level failures (cancellation, fatal
// provider errors, internal bugs); an unsuccessful task with working
// infrastructure comes back as a Result with Success=false and a nil
// error.
func (e *Executor) Run(ctx context.Context, task Task) (Result, error) {
	start := time.Now()

	detector, err := convergence.NewDetector(e.cfg.Convergence)
	if err != nil {
		return Result{}, err
	}
	rec, err := recovery.New(e.cfg.Recovery)
	if err != nil {
		return Result{}, err
	}
	orchestrator := validation.NewOrchestrator()
	machine := NewMachine()

	complexity := EstimateComplexity(task)
	allocated := e.allocator.Calculate(complexity)

	conversation := e.seedConversation(ctx, task)
	if err := e.transition(machine, EventStartSession); err != nil {
		return Result{}, err
	}

	var (
		lastScore     float64
		lastAssistant string
		toolFailures  = make(map[string]int)
	)

	for iteration := 1; ; iteration++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			machine.Transition(EventAbort)
			res := FailureResult(task.ID, "canceled: "+ctxErr.Error(), iteration-1, lastScore)
			return e.finish(task, res, start), ctxErr
		}
		e.telemetry.OnIterationStart(iteration, allocated)

		// Planning
		resp, planErr := e.plan(ctx, conversation)
		if planErr != nil && !recoverableInference(planErr) {
			machine.Transition(EventAbort)
			res := FailureResult(task.ID, "inference failed: "+planErr.Error(), iteration, lastScore)
			return e.finish(task, res, start), &engine.OperationError{
				Err: planErr, Iteration: iteration, Operation: "inference",
			}
		}
		if planErr == nil {
			if resp.Assistant.Content != "" {
				lastAssistant = resp.Assistant.Content
			}
			conversation = append(conversation, resp.Assistant)
		}
		if err := e.transition(machine, EventPlanReady); err != nil {
			return Result{}, err
		}

		// Executing
		var dispatched []engine.DispatchResult
		if planErr == nil && len(resp.ToolCalls) > 0 {
			dispatched = e.dispatcher.Dispatch(ctx, resp.ToolCalls)
			conversation = append(conversation, toolMessages(dispatched)...)
		}
		if err := e.transition(machine, EventToolsComplete); err != nil {
			return Result{}, err
		}

		// Validating
		report := orchestrator.Orchestrate(toToolResults(dispatched), task.ExpectedOutputs)
		score := report.Validation.Overall
		lastScore = score
		detector.RecordProgress(score, iteration)
		e.telemetry.OnValidation(iteration, report)

		for _, r := range dispatched {
			if r.Success() {
				delete(toolFailures, r.Call.Name)
			} else {
				toolFailures[r.Call.Name]++
			}
		}

		switch detector.CheckTermination(score, score, iteration, allocated) {
		case convergence.ConditionSuccess:
			if err := e.transition(machine, EventValidationPassed); err != nil {
				return Result{}, err
			}
			res := SuccessResult(task.ID, lastAssistant, iteration, score)
			if iteration < allocated {
				res = res.WithEarlySuccess()
			}
			return e.finish(task, res, start), nil

		case convergence.ConditionBudgetExhausted:
			if err := e.transition(machine, EventValidationFailed); err != nil {
				return Result{}, err
			}
			// Budget is a hard ceiling: record the symptom for pattern
			// history, then fail no matter what recovery would prefer.
			sym := recovery.BudgetExhaustion(iteration, allocated)
			action := rec.SelectAction(rec.DetectPattern(sym))
			e.telemetry.OnRecoveryAction(sym, action)
			if err := e.transition(machine, EventUnresolvable); err != nil {
				return Result{}, err
			}
			reason := fmt.Sprintf("budget exhausted after %d iterations", iteration)
			return e.finish(task, FailureResult(task.ID, reason, iteration, score), start), nil

		case convergence.ConditionStagnation:
			sym := recovery.StagnationFailure(detector.StagnantRun())
			done, res, err := e.recover(ctx, machine, rec, detector, sym, report, &conversation, &complexity, &allocated, task, iteration, score)
			if done || err != nil {
				return e.finish(task, res, start), err
			}

		default: // keep iterating, via recovery
			sym := deriveSymptom(planErr, toolFailures, dispatched, score, detector.SuccessThreshold())
			done, res, err := e.recover(ctx, machine, rec, detector, sym, report, &conversation, &complexity, &allocated, task, iteration, score)
			if done || err != nil {
				return e.finish(task, res, start), err
			}
		}
	}
}

// recover routes one Validating→Recovering→(Planning|Failed) leg. It
// returns done=true with the final result when the action is Abort.
func (e *Executor) recover(
	ctx context.Context,
	machine *Machine,
	rec *recovery.Recovery,
	detector *convergence.Detector,
	sym recovery.Symptom,
	report validation.Report,
	conversation *[]engine.ChatMessage,
	complexity *float64,
	allocated *int,
	task Task,
	iteration int,
	score float64,
) (bool, Result, error) {
	if err := e.transition(machine, EventValidationFailed); err != nil {
		return true, Result{}, err
	}

	action := rec.SelectAction(rec.DetectPattern(sym))
	e.telemetry.OnRecoveryAction(sym, action)

	switch action.Kind {
	case recovery.ActionAbort:
		if err := e.transition(machine, EventUnresolvable); err != nil {
			return true, Result{}, err
		}
		reason := action.Reason
		if reason == "" {
			reason = fmt.Sprintf("unrecoverable %s", sym.Kind)
		}
		return true, FailureResult(task.ID, reason, iteration, score), nil

	case recovery.ActionRetryWithBackoff:
		select {
		case <-ctx.Done():
			machine.Transition(EventAbort)
			return true, FailureResult(task.ID, "canceled: "+ctx.Err().Error(), iteration, score), ctx.Err()
		case <-time.After(action.Delay):
		}

	case recovery.ActionRotateStrategy:
		*conversation = append(*conversation, rotateHint(report))

	case recovery.ActionSimplifyApproach:
		*conversation = append(*conversation, simplifyHint())

	case recovery.ActionRelaxValidation:
		detector.SetSuccessThreshold(action.NewThreshold)

	case recovery.ActionReassessComplexity:
		// Raise, never lower: the loop only got here because the task
		// turned out harder than estimated.
		*complexity += 0.2
		if *complexity > 1 {
			*complexity = 1
		}
		if nb := e.allocator.Calculate(*complexity); nb > *allocated {
			*allocated = nb
		}
	}

	if err := e.transition(machine, EventResolved); err != nil {
		return true, Result{}, err
	}
	return false, Result{}, nil
}

func (e *Executor) plan(ctx context.Context, conversation []engine.ChatMessage) (engine.LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.InferenceTimeout)
	defer cancel()

	e.hooks.OnBeforeLLM(e.cfg.Model, conversation)
	start := time.Now()

	resp, err := engine.RetryLLMCall(callCtx, e.cfg.Retry,
		func(attempt int, delay time.Duration, attemptErr error) {
			e.hooks.OnRetryAttempt("inference", attempt, delay, attemptErr)
		},
		func(ctx context.Context) (engine.LLMResponse, error) {
			return e.llm.Chat(ctx, e.cfg.Model, conversation, e.registry.Schemas(), engine.ChatOptions{
				Temperature:     e.cfg.Temperature,
				MaxOutputTokens: e.cfg.MaxOutputTokens,
			})
		})

	e.hooks.OnAfterLLM(resp, err, time.Since(start))
	if err != nil && engine.IsRetryExhausted(err) {
		e.hooks.OnRetryExhausted("inference", err)
	}
	return resp, err
}

func (e *Executor) seedConversation(ctx context.Context, task Task) []engine.ChatMessage {
	conversation := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: e.cfg.SystemPrompt},
	}

	if e.recall != nil {
		if episodes := e.recall(ctx, task); len(episodes) > 0 {
			var b strings.Builder
			b.WriteString("Outcomes of similar past tasks, for reference:\n")
			for _, ep := range episodes {
				b.WriteString("- ")
				b.WriteString(ep)
				b.WriteString("\n")
			}
			conversation = append(conversation, engine.ChatMessage{
				Role: engine.RoleUser, Content: b.String(),
			})
		}
	}

	var b strings.Builder
	b.WriteString(task.Description)
	if task.WorkingDir != "" {
		fmt.Fprintf(&b, "\n\nWorking directory: %s", task.WorkingDir)
	}
	if len(task.Files) > 0 {
		fmt.Fprintf(&b, "\nRelevant files: %s", strings.Join(task.Files, ", "))
	}
	if len(task.ExpectedOutputs) > 0 {
		b.WriteString("\nThe work is complete when tool output shows:")
		for _, want := range task.ExpectedOutputs {
			fmt.Fprintf(&b, "\n- %s", want)
		}
	}
	return append(conversation, engine.ChatMessage{Role: engine.RoleUser, Content: b.String()})
}

func (e *Executor) transition(m *Machine, event Event) error {
	from := m.State()
	to, err := m.Transition(event)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	e.telemetry.OnStateChange(from, to)
	return nil
}

// finish stamps the duration and files touched, records the episode and
// emits final telemetry.
func (e *Executor) finish(task Task, res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	if e.filesTouched != nil {
		res.FilesTouched = e.filesTouched()
	}
	if e.record != nil {
		e.record(task, res)
	}
	e.telemetry.OnFinish(res)
	return res
}

// recoverableInference reports whether a failed inference call should
// flow through the loop as a symptom rather than abort the run. Auth and
// request errors abort; exhausted retries and timeouts recover.
func recoverableInference(err error) bool {
	return engine.IsRetryExhausted(err) || engine.IsTimeoutError(err)
}

// deriveSymptom maps the iteration's failure signals to a recovery
// symptom: inference trouble first, then the worst failing tool, then a
// below-threshold validation score.
func deriveSymptom(planErr error, toolFailures map[string]int, dispatched []engine.DispatchResult, score, threshold float64) recovery.Symptom {
	if planErr != nil {
		return recovery.Timeout("inference")
	}

	worstTool := ""
	worstCount := 0
	for _, r := range dispatched {
		if r.Success() {
			continue
		}
		if c := toolFailures[r.Call.Name]; c > worstCount {
			worstTool, worstCount = r.Call.Name, c
		}
	}
	if worstTool != "" {
		return recovery.ToolFailure(worstTool, worstCount)
	}

	if score < threshold {
		return recovery.ValidationFailure(score, threshold)
	}
	return recovery.Unknown()
}

func toToolResults(dispatched []engine.DispatchResult) []validation.ToolResult {
	results := make([]validation.ToolResult, 0, len(dispatched))
	for _, r := range dispatched {
		tr := validation.ToolResult{
			Tool:     r.Call.Name,
			Output:   r.Output,
			Success:  r.Success(),
			Duration: r.Duration,
			ExitCode: r.ExitCode,
		}
		if r.Err != nil {
			tr.Error = r.Err.Error()
		}
		results = append(results, tr)
	}
	return results
}

func toolMessages(dispatched []engine.DispatchResult) []engine.ChatMessage {
	msgs := make([]engine.ChatMessage, 0, len(dispatched))
	for _, r := range dispatched {
		content := r.Output
		if r.Err != nil {
			content = "error: " + r.Err.Error()
		}
		name := r.Call.ID
		if name == "" {
			name = r.Call.Name
		}
		msgs = append(msgs, engine.ChatMessage{
			Role:    engine.RoleTool,
			Content: content,
			Name:    name,
		})
	}
	return msgs
}

func rotateHint(report validation.Report) engine.ChatMessage {
	var b strings.Builder
	b.WriteString("The current approach is not converging. Step back and try a different strategy.")
	if failed := report.Validation.FailedChecks(); len(failed) > 0 {
		b.WriteString(" Unresolved checks:")
		for _, c := range failed {
			fmt.Fprintf(&b, "\n- %s: %s", c.Name, c.Detail)
		}
	}
	return engine.ChatMessage{Role: engine.RoleUser, Content: b.String()}
}

func simplifyHint() engine.ChatMessage {
	return engine.ChatMessage{
		Role: engine.RoleUser,
		Content: "Progress has stalled. Break the remaining work into the smallest possible steps and complete one step at a time, verifying each before moving on.",
	}
}
