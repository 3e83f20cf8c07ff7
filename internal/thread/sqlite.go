package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is a SQLite-backed thread store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the thread database at dbPath.
// Use ":memory:" for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles one writer at a time. Serializing through a single
	// connection keeps per-conversation appends observably ordered.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_invocations TEXT,
		parent_message_id TEXT,
		created_at TIMESTAMP NOT NULL,
		metadata TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation owned by userID. The
// title is seeded from the first user message and expected to be
// overwritten once the generated title is available.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, titleSeed string) (*Conversation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	conv := &Conversation{
		ID:        id.String(),
		UserID:    userID,
		Title:     SeedTitle(titleSeed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	return conv, nil
}

// TouchConversation bumps the conversation's updated_at to now.
func (s *SQLiteStore) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// UpdateTitle replaces the conversation's display title.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, conversationID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?
	`, title, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return nil
}

// AppendMessage inserts one message row. The caller supplies the parent
// link; the store does not infer it.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	if m.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		m.ID = id.String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var invocations any
	if len(m.ToolInvocations) > 0 {
		data, err := json.Marshal(m.ToolInvocations)
		if err != nil {
			return nil, fmt.Errorf("marshal tool invocations: %w", err)
		}
		invocations = string(data)
	}

	var metadata any
	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(data)
	}

	var parent any
	if m.ParentID != "" {
		parent = m.ParentID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, user_id, role, content, tool_invocations, parent_message_id, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.UserID, m.Role, m.Content, invocations, parent, m.CreatedAt, metadata)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &m, nil
}

// FindThreadTail returns the most recently created message in the
// conversation, or nil for a brand-new conversation. Timestamp ties are
// broken by id — message ids are UUIDv7, so lexicographic order matches
// creation order and tail selection stays deterministic.
func (s *SQLiteStore) FindThreadTail(ctx context.Context, conversationID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, user_id, role, content, tool_invocations, parent_message_id, created_at, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find thread tail: %w", err)
	}
	return m, nil
}

// GetConversation returns the conversation if it exists and is owned by
// userID, or nil otherwise.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, archived, created_at, updated_at, metadata
		FROM conversations
		WHERE id = ? AND user_id = ?
	`, conversationID, userID)

	var conv Conversation
	var title, metadata sql.NullString
	err := row.Scan(&conv.ID, &conv.UserID, &title, &conv.Archived, &conv.CreatedAt, &conv.UpdatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.Title = title.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently
// updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, archived, created_at, updated_at, metadata
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		var title, metadata sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.Archived, &conv.CreatedAt, &conv.UpdatedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.Title = title.String
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &conv.Metadata)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Messages returns all of a conversation's messages in storage order
// (created_at, then id for ties).
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, role, content, tool_invocations, parent_message_id, created_at, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// ReconstructThread returns the conversation's messages in linear,
// parent-first order (see Linearize).
func (s *SQLiteStore) ReconstructThread(ctx context.Context, conversationID string) ([]Message, error) {
	messages, err := s.Messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return Linearize(messages), nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var invocations, parent, metadata sql.NullString

	err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &invocations, &parent, &m.CreatedAt, &metadata)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		m.ParentID = parent.String
	}
	if invocations.Valid && invocations.String != "" {
		if err := json.Unmarshal([]byte(invocations.String), &m.ToolInvocations); err != nil {
			return nil, fmt.Errorf("decode tool invocations: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &m, nil
}
