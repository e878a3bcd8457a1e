package engine

import (
	"log"
	"time"
)

// Hook observes engine activity. Implementations must be fast and must
// not block; they run inline on the loop goroutine.
type Hook interface {
	OnBeforeLLM(model string, messages []ChatMessage)
	OnAfterLLM(resp LLMResponse, err error, duration time.Duration)
	OnToolCall(name string, args map[string]any)
	OnToolResult(name string, output string, err error, duration time.Duration)
	OnRetryAttempt(operation string, attempt int, delay time.Duration, err error)
	OnRetryExhausted(operation string, err error)
}

// NopHook implements Hook with no-ops. Embed it to pick only the
// callbacks you care about.
type NopHook struct{}

func (NopHook) OnBeforeLLM(string, []ChatMessage)                       {}
func (NopHook) OnAfterLLM(LLMResponse, error, time.Duration)            {}
func (NopHook) OnToolCall(string, map[string]any)                       {}
func (NopHook) OnToolResult(string, string, error, time.Duration)       {}
func (NopHook) OnRetryAttempt(string, int, time.Duration, error)        {}
func (NopHook) OnRetryExhausted(string, error)                          {}

// Hooks fans out to multiple hooks. A nil or empty slice is valid and
// does nothing.
type Hooks []Hook

func (h Hooks) OnBeforeLLM(model string, messages []ChatMessage) {
	for _, hook := range h {
		hook.OnBeforeLLM(model, messages)
	}
}

func (h Hooks) OnAfterLLM(resp LLMResponse, err error, duration time.Duration) {
	for _, hook := range h {
		hook.OnAfterLLM(resp, err, duration)
	}
}

func (h Hooks) OnToolCall(name string, args map[string]any) {
	for _, hook := range h {
		hook.OnToolCall(name, args)
	}
}

func (h Hooks) OnToolResult(name string, output string, err error, duration time.Duration) {
	for _, hook := range h {
		hook.OnToolResult(name, output, err, duration)
	}
}

func (h Hooks) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	for _, hook := range h {
		hook.OnRetryAttempt(operation, attempt, delay, err)
	}
}

func (h Hooks) OnRetryExhausted(operation string, err error) {
	for _, hook := range h {
		hook.OnRetryExhausted(operation, err)
	}
}

// LoggerHook logs engine activity via the standard logger.
type LoggerHook struct {
	NopHook
	Verbose bool
}

func (l LoggerHook) OnBeforeLLM(model string, messages []ChatMessage) {
	if l.Verbose {
		log.Printf("🧠 inference call model=%s messages=%d", model, len(messages))
	}
}

func (l LoggerHook) OnAfterLLM(resp LLMResponse, err error, duration time.Duration) {
	if err != nil {
		log.Printf("❌ inference failed after %s: %v", duration.Round(time.Millisecond), err)
		return
	}
	if l.Verbose {
		log.Printf("✅ inference ok in %s tokens=%d tool_calls=%d",
			duration.Round(time.Millisecond), resp.Usage.Total, len(resp.ToolCalls))
	}
}

func (l LoggerHook) OnToolCall(name string, args map[string]any) {
	log.Printf("🔧 tool call: %s", name)
}

func (l LoggerHook) OnToolResult(name string, output string, err error, duration time.Duration) {
	if err != nil {
		log.Printf("❌ tool %s failed after %s: %v", name, duration.Round(time.Millisecond), err)
		return
	}
	if l.Verbose {
		log.Printf("✅ tool %s ok in %s (%d bytes)", name, duration.Round(time.Millisecond), len(output))
	}
}

func (l LoggerHook) OnRetryAttempt(operation string, attempt int, delay time.Duration, err error) {
	log.Printf("🔄 retrying %s (attempt %d, waiting %s): %v", operation, attempt, delay.Round(time.Millisecond), err)
}

func (l LoggerHook) OnRetryExhausted(operation string, err error) {
	log.Printf("💀 retries exhausted for %s: %v", operation, err)
}
