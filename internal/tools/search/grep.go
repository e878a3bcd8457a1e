// Package search provides code search tools backed by ripgrep.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternlabs/tern/internal/engine"
	"github.com/ternlabs/tern/internal/tools/execution"
)

const (
	grepTimeout    = 10 * time.Second
	grepMaxResults = 100
)

// rgMessage is the subset of ripgrep's --json stream we care about.
type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

type grepMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func grep(ctx context.Context, runner execution.Runner, workDir, pattern, path, globs string, caseInsensitive bool) (string, error) {
	args := []string{"--json"}
	if caseInsensitive {
		args = append(args, "-i")
	}
	for _, part := range strings.Split(globs, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			args = append(args, "-g", trimmed)
		}
	}
	args = append(args, "-e", pattern)
	if path != "" {
		args = append(args, path)
	} else {
		args = append(args, ".")
	}

	res, err := runner.RunCmd(ctx, workDir, "rg", args, grepTimeout)
	if err != nil {
		// rg exits 1 when nothing matched.
		if res.Code == 1 {
			return marshalGrepResponse(pattern, nil, false)
		}
		return "", fmt.Errorf("grep failed: %v, stderr: %s", err, res.Stderr)
	}

	matches := make([]grepMatch, 0)
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Type != "match" {
			continue
		}
		matches = append(matches, grepMatch{
			Path:    msg.Data.Path.Text,
			Line:    msg.Data.LineNumber,
			Content: strings.TrimSpace(msg.Data.Lines.Text),
		})
	}

	truncated := false
	if len(matches) > grepMaxResults {
		matches = matches[:grepMaxResults]
		truncated = true
	}

	return marshalGrepResponse(pattern, matches, truncated)
}

func marshalGrepResponse(pattern string, matches []grepMatch, truncated bool) (string, error) {
	if matches == nil {
		matches = []grepMatch{}
	}
	responseJSON, err := json.Marshal(map[string]any{
		"pattern":   pattern,
		"results":   matches,
		"count":     len(matches),
		"truncated": truncated,
	})
	if err != nil {
		return "", err
	}
	return string(responseJSON), nil
}

// NewGrepTool builds the grep tool bound to workDir and runner.
func NewGrepTool(workDir string, runner execution.Runner) engine.Tool {
	return &engine.FuncTool{
		ToolName: "grep",
		Desc:     "Fast, regex-based code search using ripgrep. Use this to find code patterns, function definitions, or references. Supports case-insensitive search and glob patterns.",
		Schema:   `{"type":"object","properties":{"pattern":{"type":"string","description":"Regex pattern to search for"},"path":{"type":"string","description":"Optional: specific file or directory path"},"globs":{"type":"string","description":"Optional: comma-separated file patterns"},"case_insensitive":{"type":"boolean","description":"Optional: case-insensitive search"}},"required":["pattern"]}`,
		CanRetry: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, ok := args["pattern"].(string)
			if !ok {
				return "", fmt.Errorf("pattern must be a string")
			}
			path := ""
			if p, ok := args["path"].(string); ok {
				path = p
			}
			globs := ""
			if g, ok := args["globs"].(string); ok {
				globs = g
			}
			caseInsensitive := false
			if ci, ok := args["case_insensitive"].(bool); ok {
				caseInsensitive = ci
			}
			return grep(ctx, runner, workDir, pattern, path, globs, caseInsensitive)
		},
	}
}
