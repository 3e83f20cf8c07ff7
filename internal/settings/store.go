package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists per-user generation settings.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the settings database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_settings (
			user_id            TEXT PRIMARY KEY,
			tone               TEXT NOT NULL,
			temperature        REAL NOT NULL,
			top_p              REAL NOT NULL,
			top_k              INTEGER NOT NULL,
			max_tokens         INTEGER NOT NULL,
			presence_penalty   REAL NOT NULL,
			frequency_penalty  REAL NOT NULL,
			show_intermediate  INTEGER NOT NULL,
			updated_at         TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored settings for a user, or nil when the user has
// no settings row.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*GenerationSettings, error) {
	var gs GenerationSettings
	var show int
	err := s.db.QueryRowContext(ctx,
		`SELECT tone, temperature, top_p, top_k, max_tokens, presence_penalty, frequency_penalty, show_intermediate
		 FROM user_settings WHERE user_id = ?`, userID).
		Scan(&gs.Tone, &gs.Temperature, &gs.TopP, &gs.TopK, &gs.MaxTokens,
			&gs.PresencePenalty, &gs.FrequencyPenalty, &show)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	gs.ShowIntermediateSteps = show != 0
	return &gs, nil
}

// Put stores (or replaces) a user's settings.
func (s *SQLiteStore) Put(ctx context.Context, userID string, gs GenerationSettings) error {
	show := 0
	if gs.ShowIntermediateSteps {
		show = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, tone, temperature, top_p, top_k, max_tokens, presence_penalty, frequency_penalty, show_intermediate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			tone = excluded.tone,
			temperature = excluded.temperature,
			top_p = excluded.top_p,
			top_k = excluded.top_k,
			max_tokens = excluded.max_tokens,
			presence_penalty = excluded.presence_penalty,
			frequency_penalty = excluded.frequency_penalty,
			show_intermediate = excluded.show_intermediate,
			updated_at = excluded.updated_at`,
		userID, string(gs.Tone), gs.Temperature, gs.TopP, gs.TopK, gs.MaxTokens,
		gs.PresencePenalty, gs.FrequencyPenalty, show, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}
