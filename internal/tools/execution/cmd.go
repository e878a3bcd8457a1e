package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternlabs/tern/internal/engine"
)

const (
	defaultCmdTimeout = 60 * time.Second
	minCmdTimeout     = 5 * time.Second
	maxCmdTimeout     = 5 * time.Minute
	defaultMaxLines   = 40
	minMaxLines       = 5
	maxMaxLines       = 200
	maxOutputChars    = 4000
)

// allowedCommands is the run_cmd allowlist. Anything not listed here is
// rejected before it reaches the sandbox.
var allowedCommands = []string{
	// Build tools
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake",
	"gradle", "mvn",

	// Linters & formatters
	"eslint", "prettier", "biome",
	"ruff", "black", "isort", "mypy", "flake8",
	"tsc", "node",
	"golangci-lint",
	"shellcheck",

	// File operations
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail", "less",
	"ls", "find", "tree",
	"wc", "grep", "awk", "sed", "sort", "uniq", "diff",

	// Version control
	"git",

	// Network
	"curl", "wget",

	// Shell
	"sh", "bash", "zsh",

	// Utilities
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip",
	"jq", "yq",
}

func commandAllowed(cmd string) bool {
	for _, allowed := range allowedCommands {
		if cmd == allowed {
			return true
		}
	}
	return false
}

func runCmd(ctx context.Context, runner Runner, workDir, cmd, argsStr string, timeout time.Duration, maxLines int) (string, error) {
	if !commandAllowed(cmd) {
		out := engine.ExecutionResult{
			Cmd:      cmd,
			ExitCode: 1,
			Stderr:   fmt.Sprintf("Command '%s' is not in allowlist. Allowed commands: %s", cmd, strings.Join(allowedCommands, ", ")),
			Status:   "failed",
		}
		resultJSON, _ := json.Marshal(out)
		return string(resultJSON), nil
	}

	var args []string
	if argsStr != "" {
		args = splitArgs(argsStr)
	}

	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	if timeout > maxCmdTimeout {
		timeout = maxCmdTimeout
	}

	res, err := runner.RunCmd(ctx, workDir, cmd, args, timeout)

	cmdStr := cmd
	if len(args) > 0 {
		cmdStr += " " + strings.Join(args, " ")
	}

	if maxLines <= 0 {
		maxLines = defaultMaxLines
	} else if maxLines > maxMaxLines {
		maxLines = maxMaxLines
	}

	stdout, stdoutTruncated := truncateOutput(res.Stdout, maxLines)
	stderr, stderrTruncated := truncateOutput(res.Stderr, maxLines)

	out := engine.ExecutionResult{
		Cmd:             cmdStr,
		ExitCode:        res.Code,
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
		Status:          "ok",
	}
	if res.TimedOut || errors.Is(err, context.DeadlineExceeded) {
		out.TimedOut = true
		out.Status = "failed"
	} else if err != nil {
		out.Status = "failed"
		if out.ExitCode == 0 {
			out.ExitCode = 1
		}
		if out.Stderr == "" {
			out.Stderr = err.Error()
		}
	}
	if res.Code != 0 {
		out.Status = "failed"
	}

	resultJSON, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return "", marshalErr
	}
	return string(resultJSON), nil
}

// splitArgs splits a space-separated argument string, honoring single
// and double quotes.
func splitArgs(argsStr string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(argsStr); i++ {
		char := argsStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

func parseTimeoutArg(value any) time.Duration {
	if value == nil {
		return defaultCmdTimeout
	}
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return defaultCmdTimeout
	}
	if seconds <= 0 {
		return defaultCmdTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < minCmdTimeout {
		timeout = minCmdTimeout
	}
	if timeout > maxCmdTimeout {
		timeout = maxCmdTimeout
	}
	return timeout
}

func parseMaxLinesArg(value any) int {
	if value == nil {
		return defaultMaxLines
	}
	var lines int
	switch v := value.(type) {
	case float64:
		lines = int(v)
	case int:
		lines = v
	default:
		return defaultMaxLines
	}
	if lines < minMaxLines {
		lines = minMaxLines
	}
	if lines > maxMaxLines {
		lines = maxMaxLines
	}
	return lines
}

func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxOutputChars {
		joined = joined[:maxOutputChars]
		truncated = true
	}
	return joined, truncated
}

// NewRunCmdTool builds the run_cmd tool bound to workDir and runner.
func NewRunCmdTool(workDir string, runner Runner) engine.Tool {
	return &engine.FuncTool{
		ToolName: "run_cmd",
		Desc:     "Runs a command with strict allowlist enforcement. Allowed: build tools (go, npm, yarn, python, pip, cargo, make), linters (eslint, prettier, ruff, tsc), file ops (ls, cat, grep, find, mkdir, rm, cp), git, curl/wget, shells (sh, bash), and utilities (jq, tar, zip). Supports optional timeout and output truncation.",
		Schema: `{
			"type": "object",
			"properties": {
				"cmd": {"type":"string","description":"Command name (must be in allowlist)"},
				"args": {"type":"string","description":"Command arguments as space-separated string"},
				"timeout_seconds": {"type":"integer","minimum":5,"maximum":300,"description":"Maximum seconds to allow the command to run (default: 60)"},
				"max_output_lines": {"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return (default: 40)"}
			},
			"required": ["cmd"]
		}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			cmd, ok := args["cmd"].(string)
			if !ok {
				return "", fmt.Errorf("cmd must be a string")
			}
			argsStr := ""
			if a, ok := args["args"].(string); ok {
				argsStr = a
			}
			timeout := parseTimeoutArg(args["timeout_seconds"])
			maxLines := parseMaxLinesArg(args["max_output_lines"])

			return runCmd(ctx, runner, workDir, cmd, argsStr, timeout, maxLines)
		},
	}
}
