package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeTool struct {
	name      string
	schema    string
	retryable bool
	execute   func(ctx context.Context, args map[string]any) (string, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }
func (f *fakeTool) JSONSchema() string  { return f.schema }
func (f *fakeTool) Retryable() bool     { return f.retryable }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.execute(ctx, args)
}

func newTestDispatcher(t *testing.T, tools ...Tool) *Dispatcher {
	t.Helper()
	reg := NewToolRegistry()
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			t.Fatal(err)
		}
	}
	return NewDispatcher(reg, fastRetryConfig(), time.Second, nil)
}

func TestDispatchRunsCallsInOrder(t *testing.T) {
	var order []string
	mk := func(name string) Tool {
		return &fakeTool{
			name: name,
			execute: func(ctx context.Context, args map[string]any) (string, error) {
				order = append(order, name)
				return name + " done", nil
			},
		}
	}
	d := newTestDispatcher(t, mk("first"), mk("second"), mk("third"))

	results := d.Dispatch(context.Background(), []ToolCall{
		{Name: "first"}, {Name: "second"}, {Name: "third"},
	})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("execution order = %v", order)
	}
	for _, r := range results {
		if !r.Success() {
			t.Errorf("call %s: unexpected failure: %v", r.Call.Name, r.Err)
		}
	}
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	failing := &fakeTool{
		name: "broken",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("invalid input")
		},
	}
	working := &fakeTool{
		name: "fine",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
	d := newTestDispatcher(t, failing, working)

	results := d.Dispatch(context.Background(), []ToolCall{{Name: "broken"}, {Name: "fine"}})

	if results[0].Success() {
		t.Error("first call should have failed")
	}
	if !results[1].Success() {
		t.Errorf("second call should still run: %v", results[1].Err)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Dispatch(context.Background(), []ToolCall{{Name: "no_such_tool"}})
	if results[0].Err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if results[0].ExitCode == 0 {
		t.Error("unknown tool should report non-zero exit code")
	}
}

func TestDispatchMalformedCall(t *testing.T) {
	d := newTestDispatcher(t)
	results := d.Dispatch(context.Background(), []ToolCall{
		{Name: "whatever", Error: "unbalanced JSON in arguments"},
	})
	if results[0].Err == nil || !strings.Contains(results[0].Err.Error(), "malformed") {
		t.Errorf("expected malformed call error, got %v", results[0].Err)
	}
}

func TestDispatchValidatesArgs(t *testing.T) {
	tool := &fakeTool{
		name:   "read_file",
		schema: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			t.Fatal("tool should not run with invalid args")
			return "", nil
		},
	}
	d := newTestDispatcher(t, tool)

	results := d.Dispatch(context.Background(), []ToolCall{
		{Name: "read_file", Args: map[string]any{}},
	})

	var vErr *ToolValidationError
	if !errors.As(results[0].Err, &vErr) {
		t.Fatalf("expected ToolValidationError, got %v", results[0].Err)
	}
	if vErr.ToolName != "read_file" {
		t.Errorf("ToolName = %q", vErr.ToolName)
	}
}

func TestDispatchExtractsExitCode(t *testing.T) {
	tool := &fakeTool{
		name: "run_cmd",
		execute: func(ctx context.Context, args map[string]any) (string, error) {
			return `{"cmd":"go test ./...","exit_code":2,"stdout":"","stderr":"FAIL"}`, nil
		},
	}
	d := newTestDispatcher(t, tool)

	results := d.Dispatch(context.Background(), []ToolCall{{Name: "run_cmd"}})
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", results[0].ExitCode)
	}
	if results[0].Success() {
		t.Error("non-zero exit should not count as success")
	}
}

func TestExtractExitCode(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   int
	}{
		{"plain text", "file contents here", 0},
		{"clean run", `{"cmd":"ls","exit_code":0,"stdout":"a\nb","stderr":""}`, 0},
		{"failed run", `{"cmd":"make","exit_code":1,"stdout":"","stderr":"error"}`, 1},
		{"timed out", `{"cmd":"sleep 90","exit_code":0,"stdout":"","stderr":"","timed_out":true}`, 124},
		{"not execution json", `{"items":[1,2,3]}`, 0},
		{"invalid json", `{broken`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractExitCode(tt.output); got != tt.want {
				t.Errorf("extractExitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "grep"}

	if err := reg.Register(tool); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(tool); err == nil {
		t.Error("duplicate registration should fail")
	}
	if _, ok := reg.Get("grep"); !ok {
		t.Error("registered tool not found")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}

	schemas := reg.Schemas()
	if len(schemas) != 1 || schemas[0].Name != "grep" {
		t.Errorf("Schemas = %+v", schemas)
	}
}
