// Package session persists task run records as JSON files, scoped per
// workspace.
package session

import (
	"time"

	"github.com/ternlabs/tern/internal/agent"
)

// Record is the durable trace of one task run.
type Record struct {
	ID            string        `json:"id"`
	WorkspacePath string        `json:"workspace_path"`
	WorkspaceHash string        `json:"workspace_hash"`
	Kind          string        `json:"kind"`
	Description   string        `json:"description"`
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Iterations    int           `json:"iterations"`
	Score         float64       `json:"score"`
	Duration      time.Duration `json:"duration"`
	FilesTouched  []string      `json:"files_touched,omitempty"`
	EarlySuccess  bool          `json:"early_success,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Meta is the lightweight listing view of a record.
type Meta struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRecord builds a record from a finished task run.
func NewRecord(task agent.Task, result agent.Result) Record {
	now := time.Now()
	return Record{
		ID:            task.ID,
		WorkspacePath: task.WorkingDir,
		Kind:          task.Kind,
		Description:   task.Description,
		Success:       result.Success,
		Output:        result.Output,
		Iterations:    result.Iterations,
		Score:         result.ValidationScore,
		Duration:      result.Duration,
		FilesTouched:  result.FilesTouched,
		EarlySuccess:  result.EarlySuccess,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
