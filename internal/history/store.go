// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ngandimoun/minato-tui/internal/model"
)

// ErrNotFound is returned when a conversation is not in the cache.
var ErrNotFound = errors.New("history: conversation not found")

const (
	// DefaultMaxConversations bounds the cache; the oldest conversations
	// are pruned past this.
	DefaultMaxConversations = 100

	// DefaultPageSize is the message page size for incremental loading.
	DefaultPageSize = 50
)

// =============================================================================
// STORE
// =============================================================================

// Store is the local SQLite cache of conversations. It holds pages fetched
// from the history endpoint plus locally finalized turns, so past chats
// render instantly and survive offline starts.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	maxConversations int
}

// DefaultPath returns the default database location, ~/.minato/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".minato", "history.db"), nil
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(initMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metadata: %w", err)
	}

	return &Store{
		db:               db,
		logger:           logger,
		maxConversations: DefaultMaxConversations,
	}, nil
}

// WithMaxConversations sets the pruning cap. Zero disables pruning.
func (s *Store) WithMaxConversations(n int) *Store {
	s.maxConversations = n
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE
// =============================================================================

// SaveConversation upserts the conversation row and every message. Message
// upserts are keyed by id, so re-saving after a history merge or an id
// swap is idempotent: the server-id row simply replaces itself.
func (s *Store) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`,
		conv.ID, conv.GetTitle(), conv.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	// Provisional rows are transient: after an id swap the old row would
	// otherwise linger next to its server-id replacement. Clear them and
	// re-insert whichever are still live.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND id LIKE 'local-%'`,
		conv.ID); err != nil {
		return fmt.Errorf("clear provisional messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO messages
		(id, conversation_id, role, content, timestamp, error, structured_data, annotations, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range conv.Messages {
		structured, annotations, attachments, err := encodeExtras(m)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		errFlag := 0
		if m.Error {
			errFlag = 1
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, conv.ID, string(m.Role), m.Content, m.Timestamp.UnixMilli(),
			errFlag, structured, annotations, attachments); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	s.enforceLimit(ctx)
	return nil
}

// encodeExtras serializes the optional message columns. Attachment
// payloads never reach disk: Sent() strips the bytes and keeps metadata.
func encodeExtras(m model.Message) (structured, annotations, attachments sql.NullString, err error) {
	if len(m.StructuredData) > 0 {
		structured = sql.NullString{String: string(m.StructuredData), Valid: true}
	}
	if len(m.Annotations) > 0 {
		raw, merr := json.Marshal(m.Annotations)
		if merr != nil {
			return structured, annotations, attachments, merr
		}
		annotations = sql.NullString{String: string(raw), Valid: true}
	}
	if len(m.Attachments) > 0 {
		stripped := make([]model.Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			stripped[i] = a.Sent()
		}
		raw, merr := json.Marshal(stripped)
		if merr != nil {
			return structured, annotations, attachments, merr
		}
		attachments = sql.NullString{String: string(raw), Valid: true}
	}
	return structured, annotations, attachments, nil
}

// =============================================================================
// LOAD
// =============================================================================

// LoadConversation restores a conversation with its most recent message
// page. Older pages load on demand through LoadMessagesBefore.
func (s *Store) LoadConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id)

	conv := &model.Conversation{}
	var title string
	var created, updated int64
	if err := row.Scan(&conv.ID, &title, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.SetTitle(title)
	conv.CreatedAt = time.UnixMilli(created)
	conv.UpdatedAt = time.UnixMilli(updated)

	msgs, err := s.LoadMessagesBefore(ctx, id, time.Time{}, DefaultPageSize)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// LoadMessagesBefore returns up to limit messages older than before,
// oldest-first within the page, matching the shape MergeHistory expects.
// A zero before means "latest page".
func (s *Store) LoadMessagesBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	cutoff := int64(1<<62 - 1)
	if !before.IsZero() {
		cutoff = before.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, error, structured_data, annotations, attachments
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, conversationID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var page []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// The query walks newest-first to apply the limit; flip to the
	// oldest-first order the merge wants.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var m model.Message
	var role string
	var ts int64
	var errFlag int
	var structured, annotations, attachments sql.NullString

	if err := rows.Scan(&m.ID, &role, &m.Content, &ts, &errFlag,
		&structured, &annotations, &attachments); err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}

	m.Role = model.Role(role)
	m.Timestamp = time.UnixMilli(ts)
	m.Error = errFlag != 0
	if structured.Valid {
		m.StructuredData = json.RawMessage(structured.String)
	}
	if annotations.Valid {
		if err := json.Unmarshal([]byte(annotations.String), &m.Annotations); err != nil {
			return m, fmt.Errorf("decode annotations: %w", err)
		}
	}
	if attachments.Valid {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return m, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return m, nil
}

// =============================================================================
// LIST / DELETE
// =============================================================================

// Meta is a conversation summary row for list views.
type Meta struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// ListConversations returns conversation summaries, most recent first.
func (s *Store) ListConversations(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var meta Meta
		var created, updated int64
		if err := rows.Scan(&meta.ID, &meta.Title, &created, &updated, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		meta.CreatedAt = time.UnixMilli(created)
		meta.UpdatedAt = time.UnixMilli(updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// enforceLimit prunes the oldest conversations past the cap. Failures are
// logged, never surfaced: pruning is housekeeping.
func (s *Store) enforceLimit(ctx context.Context) {
	if s.maxConversations <= 0 {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`, s.maxConversations)
	if err != nil {
		s.logger.Warn("history prune failed", zap.Error(err))
	}
}
