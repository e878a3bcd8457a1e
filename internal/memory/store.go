// Package memory persists task episodes across sessions: an append-only
// SQLite store for the records and aggregate statistics, and a bleve
// keyword index over episode summaries for recall.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Episode is one finished task run.
type Episode struct {
	ID          string
	TaskID      string
	Kind        string
	Description string
	Summary     string
	Outcome     string // "success" or "failure"
	Iterations  int
	Score       float64
	CreatedAt   int64
}

// KindStats aggregates past episodes of one task kind.
type KindStats struct {
	Kind          string
	Attempts      int
	Successes     int
	AvgIterations float64
	AvgScore      float64
}

// SuccessRate returns the fraction of attempts that succeeded.
func (s KindStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Store is the SQLite-backed episode log. Episodes are append-only.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the episode database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL allows a reader alongside the single writer.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		episode_id  TEXT PRIMARY KEY,
		task_id     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		description TEXT NOT NULL,
		summary     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		iterations  INTEGER NOT NULL,
		score       REAL NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_kind ON episodes(kind);
	CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveEpisode appends an episode. Episodes are never updated or deleted.
func (s *Store) SaveEpisode(ctx context.Context, e Episode) error {
	if e.ID == "" {
		return fmt.Errorf("episode has empty ID")
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	query := `
		INSERT INTO episodes (episode_id, task_id, kind, description, summary, outcome, iterations, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, e.ID, e.TaskID, e.Kind, e.Description, e.Summary, e.Outcome, e.Iterations, e.Score, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

// RecentEpisodes returns up to limit episodes of a kind, newest first.
// An empty kind matches everything.
func (s *Store) RecentEpisodes(ctx context.Context, kind string, limit int) ([]Episode, error) {
	query := `
		SELECT episode_id, task_id, kind, description, summary, outcome, iterations, score, created_at
		FROM episodes
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, episode_id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Kind, &e.Description, &e.Summary, &e.Outcome, &e.Iterations, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// EpisodesByID fetches episodes by ID, preserving the input order.
func (s *Store) EpisodesByID(ctx context.Context, ids []string) ([]Episode, error) {
	byID := make(map[string]Episode, len(ids))
	for _, id := range ids {
		var e Episode
		query := `
			SELECT episode_id, task_id, kind, description, summary, outcome, iterations, score, created_at
			FROM episodes WHERE episode_id = ?
		`
		err := s.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.TaskID, &e.Kind, &e.Description, &e.Summary, &e.Outcome, &e.Iterations, &e.Score, &e.CreatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch episode %s: %w", id, err)
		}
		byID[id] = e
	}

	episodes := make([]Episode, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			episodes = append(episodes, e)
		}
	}
	return episodes, nil
}

// Stats aggregates all episodes of a kind.
func (s *Store) Stats(ctx context.Context, kind string) (KindStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(iterations), 0),
		       COALESCE(AVG(score), 0)
		FROM episodes
		WHERE kind = ?
	`
	stats := KindStats{Kind: kind}
	err := s.db.QueryRowContext(ctx, query, kind).Scan(&stats.Attempts, &stats.Successes, &stats.AvgIterations, &stats.AvgScore)
	if err != nil {
		return KindStats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}
