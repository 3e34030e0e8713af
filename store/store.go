// Package store persists frozen conversations to SQLite so an archive only
// has to be merged once; later analytics sessions reload the finished set.
// Raw timestamp strings are stored verbatim and re-parsed on load, keeping
// the round trip exact.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/theimaginaryfoundation/thread-weaver/weave"
)

//go:embed schema.sql
var schema string

// Store handles conversation persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConversations writes the merged set, replacing any stored conversation
// with the same display key. All-or-nothing per call.
func (s *Store) SaveConversations(ctx context.Context, convs []*weave.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, c := range convs {
		if !c.Frozen() {
			return fmt.Errorf("save conversation %q: not frozen", c.DisplayKey())
		}

		// Replace wholesale: a re-merge supersedes whatever was stored.
		var oldID string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM conversations WHERE display_key = ?", c.DisplayKey(),
		).Scan(&oldID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", oldID); err != nil {
				return fmt.Errorf("delete old messages: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", oldID); err != nil {
				return fmt.Errorf("delete old conversation: %w", err)
			}
		case err != sql.ErrNoRows:
			return fmt.Errorf("find existing conversation: %w", err)
		}

		id := uuid.New().String()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversations (id, display_key, participants, message_count) VALUES (?, ?, ?, ?)",
			id, c.DisplayKey(), string(c.Key()), c.Len(),
		); err != nil {
			return fmt.Errorf("insert conversation %q: %w", c.DisplayKey(), err)
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO messages (conversation_id, seq, sender, text, raw_time) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare message insert: %w", err)
		}
		for i := 0; i < c.Len(); i++ {
			m := c.At(i)
			if _, err := stmt.ExecContext(ctx, id, i, m.Sender, m.Text, m.Time.Raw()); err != nil {
				stmt.Close()
				return fmt.Errorf("insert message %d of %q: %w", i, c.DisplayKey(), err)
			}
		}
		stmt.Close()
	}

	return tx.Commit()
}

// LoadConversation retrieves one conversation by display key.
func (s *Store) LoadConversation(ctx context.Context, displayKey string) (*weave.Conversation, error) {
	var id, participants string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, participants FROM conversations WHERE display_key = ?", displayKey,
	).Scan(&id, &participants)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %q not found", displayKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	doc := weave.ConversationDocument{
		DisplayKey:   displayKey,
		Participants: participants,
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT sender, text, raw_time FROM messages WHERE conversation_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec weave.MessageRecord
		var text sql.NullString
		if err := rows.Scan(&rec.Sender, &text, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.Text = text.String
		doc.Messages = append(doc.Messages, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	conv, err := weave.ConversationFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("rebuild conversation %q: %w", displayKey, err)
	}
	return conv, nil
}

// ConversationInfo is one row of the stored-conversation listing.
type ConversationInfo struct {
	DisplayKey   string
	Participants string
	MessageCount int
}

// ListConversations returns stored conversations ordered by display key.
func (s *Store) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT display_key, participants, message_count FROM conversations ORDER BY display_key")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var infos []ConversationInfo
	for rows.Next() {
		var info ConversationInfo
		if err := rows.Scan(&info.DisplayKey, &info.Participants, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
