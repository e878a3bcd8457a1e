package execution

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/sandbox"
)

type fakeRunner struct {
	result sandbox.Result
	err    error

	gotWorkDir string
	gotName    string
	gotArgs    []string
	gotTimeout time.Duration
}

func (r *fakeRunner) RunCmd(ctx context.Context, workDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	r.gotWorkDir = workDir
	r.gotName = name
	r.gotArgs = args
	r.gotTimeout = timeout
	return r.result, r.err
}

func decodeResult(t *testing.T, raw string) engine.ExecutionResult {
	t.Helper()
	var res engine.ExecutionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("output is not ExecutionResult JSON: %v\n%s", err, raw)
	}
	return res
}

func TestRunCmdRejectsDisallowedCommand(t *testing.T) {
	runner := &fakeRunner{}
	tool := NewRunCmdTool(t.TempDir(), runner)

	out, err := tool.Execute(context.Background(), map[string]any{"cmd": "sudo", "args": "rm -rf /"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if res.Status != "failed" || res.ExitCode != 1 {
		t.Errorf("expected failed result, got status=%q exit=%d", res.Status, res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "not in allowlist") {
		t.Errorf("stderr should mention allowlist, got %q", res.Stderr)
	}
	if runner.gotName != "" {
		t.Errorf("runner should not have been called, ran %q", runner.gotName)
	}
}

func TestRunCmdReportsExitCode(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{Stdout: "built", Code: 0}}
	tool := NewRunCmdTool("/work", runner)

	out, err := tool.Execute(context.Background(), map[string]any{"cmd": "go", "args": `build ./...`})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if res.Status != "ok" {
		t.Errorf("status = %q, want ok", res.Status)
	}
	if res.Cmd != "go build ./..." {
		t.Errorf("cmd = %q", res.Cmd)
	}
	if runner.gotWorkDir != "/work" {
		t.Errorf("workDir = %q", runner.gotWorkDir)
	}
	if !reflect.DeepEqual(runner.gotArgs, []string{"build", "./..."}) {
		t.Errorf("args = %v", runner.gotArgs)
	}
	if runner.gotTimeout != defaultCmdTimeout {
		t.Errorf("timeout = %v, want default %v", runner.gotTimeout, defaultCmdTimeout)
	}
}

func TestRunCmdMarksTimeout(t *testing.T) {
	runner := &fakeRunner{result: sandbox.Result{Code: -1, TimedOut: true}}
	tool := NewRunCmdTool("/work", runner)

	out, err := tool.Execute(context.Background(), map[string]any{"cmd": "go", "args": "test ./...", "timeout_seconds": float64(5)})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if !res.TimedOut || res.Status != "failed" {
		t.Errorf("expected timed-out failure, got timed_out=%v status=%q", res.TimedOut, res.Status)
	}
	if runner.gotTimeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", runner.gotTimeout)
	}
}

func TestRunCmdReportsRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("create container: docker daemon unreachable")}
	tool := NewRunCmdTool("/work", runner)

	out, err := tool.Execute(context.Background(), map[string]any{"cmd": "go", "args": "build ./..."})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if res.Status != "failed" {
		t.Errorf("status = %q, want failed", res.Status)
	}
	if res.ExitCode == 0 {
		t.Error("exit code should be non-zero when the runner fails")
	}
	if !strings.Contains(res.Stderr, "docker daemon unreachable") {
		t.Errorf("stderr should carry the runner error, got %q", res.Stderr)
	}
	if res.TimedOut {
		t.Error("runner failure is not a timeout")
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"build ./...", []string{"build", "./..."}},
		{`-m "first commit"`, []string{"-m", "first commit"}},
		{`-e 'single quoted arg' .`, []string{"-e", "single quoted arg", "."}},
		{`a  b   c`, []string{"a", "b", "c"}},
		{`"nested 'quotes' kept"`, []string{"nested 'quotes' kept"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := splitArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimeoutArgClamps(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{nil, defaultCmdTimeout},
		{float64(30), 30 * time.Second},
		{float64(1), minCmdTimeout},
		{float64(9999), maxCmdTimeout},
		{"bogus", defaultCmdTimeout},
		{float64(-5), defaultCmdTimeout},
	}
	for _, tt := range tests {
		if got := parseTimeoutArg(tt.in); got != tt.want {
			t.Errorf("parseTimeoutArg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("line\n", 100)
	got, truncated := truncateOutput(long, 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if n := strings.Count(got, "\n"); n > 10 {
		t.Errorf("kept %d newlines, want <= 10", n)
	}

	huge := strings.Repeat("x", 2*maxOutputChars)
	got, truncated = truncateOutput(huge, 5)
	if !truncated || len(got) > maxOutputChars {
		t.Errorf("char cap not applied: truncated=%v len=%d", truncated, len(got))
	}

	got, truncated = truncateOutput("short", 10)
	if truncated || got != "short" {
		t.Errorf("short output should pass through, got %q truncated=%v", got, truncated)
	}
}

func TestRunTestsDetectsGoProject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/m\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{result: sandbox.Result{Stdout: "ok  \texample.com/m\t0.01s", Code: 0}}
	tool := NewRunTestsTool(dir, runner)

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if res.Status != "ok" {
		t.Errorf("status = %q, want ok", res.Status)
	}
	if runner.gotName != "go" || !reflect.DeepEqual(runner.gotArgs, []string{"test", "./..."}) {
		t.Errorf("ran %q %v, want go test ./...", runner.gotName, runner.gotArgs)
	}
}

func TestRunBuildUnknownProjectIsUnavailable(t *testing.T) {
	runner := &fakeRunner{}
	tool := NewRunBuildTool(t.TempDir(), runner)

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	res := decodeResult(t, out)
	if res.Status != "unavailable" || res.Reason != "not_configured" {
		t.Errorf("got status=%q reason=%q", res.Status, res.Reason)
	}
	if runner.gotName != "" {
		t.Errorf("runner should not have been called, ran %q", runner.gotName)
	}
}
