package agent

import (
	"strings"

	"github.com/google/uuid"
)

// Task describes one unit of work handed to the executor.
type Task struct {
	ID              string
	Kind            string // free-form label for cross-session stats ("build", "fix", ...)
	Description     string
	WorkingDir      string
	Files           []string // files the task names up front, if any
	ExpectedOutputs []string // substrings that must appear in tool output
}

// NewTask creates a task with a fresh ID.
func NewTask(kind, description, workingDir string) Task {
	return Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		WorkingDir:  workingDir,
	}
}

// Complexity-signal keywords. Presence of any of these nudges the
// estimate up a notch.
var hardTaskMarkers = []string{
	"refactor", "migrate", "concurren", "race", "deadlock",
	"protocol", "parser", "across", "redesign", "rewrite",
}

// EstimateComplexity maps a task to a [0,1] complexity score from cheap
// surface signals: description length, explicit file count, success
// criteria count and difficulty keywords. It feeds the budget allocator;
// the estimate only has to be roughly ordinal, not accurate.
func EstimateComplexity(task Task) float64 {
	score := 0.0

	// Longer descriptions correlate with bigger asks. Saturates at ~600
	// chars so walls of text do not pin the estimate to 1.
	descLen := len(task.Description)
	switch {
	case descLen > 600:
		score += 0.35
	case descLen > 300:
		score += 0.25
	case descLen > 120:
		score += 0.15
	case descLen > 0:
		score += 0.05
	}

	// Every named file implies a site to touch.
	files := len(task.Files)
	switch {
	case files > 8:
		score += 0.3
	case files > 3:
		score += 0.2
	case files > 0:
		score += 0.1
	}

	// Each expected output is a check the work must satisfy.
	criteria := len(task.ExpectedOutputs)
	switch {
	case criteria > 5:
		score += 0.2
	case criteria > 2:
		score += 0.12
	case criteria > 0:
		score += 0.05
	}

	lower := strings.ToLower(task.Description)
	for _, marker := range hardTaskMarkers {
		if strings.Contains(lower, marker) {
			score += 0.08
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}
