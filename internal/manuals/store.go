package manuals

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists manual chunks and their embeddings in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the chunk database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS manual_chunks (
			id        TEXT PRIMARY KEY,
			manual    TEXT NOT NULL,
			section   TEXT NOT NULL DEFAULT '',
			ordinal   INTEGER NOT NULL,
			content   TEXT NOT NULL,
			embedding BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_manual_chunks_manual ON manual_chunks(manual);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceManual atomically replaces all chunks for a manual. Enables
// clean re-imports.
func (s *Store) ReplaceManual(ctx context.Context, manual Manual, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manual_chunks WHERE manual = ?`, string(manual)); err != nil {
		return fmt.Errorf("delete existing chunks: %w", err)
	}

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			uid, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("generate chunk id: %w", err)
			}
			id = uid.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO manual_chunks (id, manual, section, ordinal, content, embedding)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(manual), c.Section, c.Ordinal, c.Content, encodeEmbedding(c.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Ordinal, err)
		}
	}

	return tx.Commit()
}

// EmbeddedChunks returns all chunks of a manual that carry an embedding.
func (s *Store) EmbeddedChunks(ctx context.Context, manual Manual) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manual, section, ordinal, content, embedding
		 FROM manual_chunks
		 WHERE manual = ? AND embedding IS NOT NULL
		 ORDER BY ordinal`, string(manual))
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var manualStr string
		var blob []byte
		if err := rows.Scan(&c.ID, &manualStr, &c.Section, &c.Ordinal, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Manual = Manual(manualStr)
		c.Embedding = decodeEmbedding(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks for a manual.
func (s *Store) Count(ctx context.Context, manual Manual) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manual_chunks WHERE manual = ?`, string(manual)).Scan(&n)
	return n, err
}

// --- embedding helpers ---

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
