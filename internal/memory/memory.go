package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Memory couples the episode store with its recall index.
type Memory struct {
	store *Store
	index *Index
}

// Open creates (or reopens) the memory rooted at dir. The SQLite store
// lives at dir/episodes.db and the bleve index next to it.
func Open(ctx context.Context, dir string) (*Memory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory dir: %w", err)
	}

	dbPath := filepath.Join(dir, "episodes.db")
	store, err := NewStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	index, err := NewIndex(dbPath + ".bleve")
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Memory{store: store, index: index}, nil
}

func (m *Memory) Close() error {
	indexErr := m.index.Close()
	storeErr := m.store.Close()
	if indexErr != nil {
		return indexErr
	}
	return storeErr
}

// Record appends the episode and makes it recallable. A missing ID or
// timestamp is filled in.
func (m *Memory) Record(ctx context.Context, e Episode) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := m.store.SaveEpisode(ctx, e); err != nil {
		return err
	}
	if err := m.index.IndexEpisode(e); err != nil {
		return fmt.Errorf("episode saved but not indexed: %w", err)
	}
	return nil
}

// Recall returns summaries of the top k episodes matching the query,
// preferring the given kind. Falls back to the most recent episodes of
// that kind when the index has no match.
func (m *Memory) Recall(ctx context.Context, query, kind string, k int) ([]string, error) {
	hits, err := m.index.Search(query, kind, k)
	if err != nil {
		return nil, err
	}

	var episodes []Episode
	if len(hits) > 0 {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.EpisodeID
		}
		episodes, err = m.store.EpisodesByID(ctx, ids)
	} else {
		episodes, err = m.store.RecentEpisodes(ctx, kind, k)
	}
	if err != nil {
		return nil, err
	}

	summaries := make([]string, 0, len(episodes))
	for _, e := range episodes {
		summaries = append(summaries, e.Summary)
	}
	return summaries, nil
}

// Stats reports aggregate outcomes for a task kind.
func (m *Memory) Stats(ctx context.Context, kind string) (KindStats, error) {
	return m.store.Stats(ctx, kind)
}

// Summarize renders the one-line episode summary stored for recall.
func Summarize(kind, description, outcome string, iterations int, score float64) string {
	const maxDesc = 120
	if len(description) > maxDesc {
		description = description[:maxDesc] + "..."
	}
	return fmt.Sprintf("%s task %q: %s after %d iteration(s), score %.2f", kind, description, outcome, iterations, score)
}
