package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists records under basePath/records/<workspace-hash>/.
type Store struct {
	basePath string
}

// NewStore creates a store rooted at configPath (typically ~/.config/tern).
func NewStore(configPath string) *Store {
	return &Store{basePath: filepath.Join(configPath, "records")}
}

// WorkspaceHash derives the directory-scoping hash for a workspace path.
func (s *Store) WorkspaceHash(workspacePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(workspacePath)))
	return hex.EncodeToString(hash[:])[:12]
}

// Save writes the record to disk, filling the workspace hash if absent.
func (s *Store) Save(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record has empty ID")
	}
	if rec.WorkspaceHash == "" {
		rec.WorkspaceHash = s.WorkspaceHash(rec.WorkspacePath)
	}

	dir := filepath.Join(s.basePath, rec.WorkspaceHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	filename := filepath.Join(dir, rec.ID+".json")
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

// Load retrieves one record by ID for a workspace.
func (s *Store) Load(id, workspacePath string) (*Record, error) {
	filename := filepath.Join(s.basePath, s.WorkspaceHash(workspacePath), id+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// List returns metadata for all records of a workspace, newest first.
func (s *Store) List(workspacePath string) ([]Meta, error) {
	dir := filepath.Join(s.basePath, s.WorkspaceHash(workspacePath))

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Meta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list record directory: %w", err)
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}

		metas = append(metas, Meta{
			ID:          rec.ID,
			Kind:        rec.Kind,
			Description: rec.Description,
			Success:     rec.Success,
			UpdatedAt:   rec.UpdatedAt,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}
