package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mbenaiss/conseiller-chat/models"
)

// ErrNotFound is returned when a conversation does not exist
var ErrNotFound = errors.New("not found")

// DB handles storage in SQLite
type DB interface {
	SaveConversations(ctx context.Context, conversations []models.Conversation) error
	StoreConversation(ctx context.Context, conversation models.Conversation) error
	GetConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversationsByJeunes(ctx context.Context, jeuneIDs []string) ([]models.Conversation, error)
	GetConversation(ctx context.Context, chatID string) (*models.Conversation, error)
	SetSeen(ctx context.Context, chatID string) error
	SetFlagged(ctx context.Context, chatID string, flagged bool) error
	StoreMessage(ctx context.Context, msg models.Message) error
	GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	Close() error
}

type db struct {
	db *sql.DB
}

// NewDB creates a new database
func NewDB(ctx context.Context, dbPath string) (DB, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s/conversations.db?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %v", err)
	}

	db := &db{conn}
	if err := db.initDB(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	return db, nil
}

func (s *db) initDB(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`)
	if err != nil {
		return fmt.Errorf("failed to set foreign keys pragma: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`)
	if err != nil {
		return fmt.Errorf("failed to set journal mode: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			chat_id TEXT PRIMARY KEY,
			jeune_id TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			last_message_content TEXT,
			last_message_sent_by TEXT,
			last_message_sent_at TIMESTAMP,
			seen_by_conseiller BOOLEAN NOT NULL DEFAULT 1,
			flagged_by_conseiller BOOLEAN NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT,
			chat_id TEXT,
			content TEXT,
			sent_by TEXT,
			type TEXT,
			attachments TEXT,
			creation_date TIMESTAMP,
			PRIMARY KEY (id, chat_id),
			FOREIGN KEY (chat_id) REFERENCES conversations(chat_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_conversations_jeune ON conversations(jeune_id);`)
	if err != nil {
		return fmt.Errorf("failed to create jeune index: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_messages_chat_date ON messages(chat_id, creation_date);`)
	if err != nil {
		return fmt.Errorf("failed to create chat_date index: %v", err)
	}

	return nil
}

func (s *db) Close() error {
	return s.db.Close()
}

const upsertConversation = `
	INSERT INTO conversations
	(chat_id, jeune_id, first_name, last_name, last_message_content, last_message_sent_by,
	 last_message_sent_at, seen_by_conseiller, flagged_by_conseiller)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET
		jeune_id = excluded.jeune_id,
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		last_message_content = excluded.last_message_content,
		last_message_sent_by = excluded.last_message_sent_by,
		last_message_sent_at = excluded.last_message_sent_at,
		seen_by_conseiller = excluded.seen_by_conseiller,
		flagged_by_conseiller = excluded.flagged_by_conseiller`

// SaveConversations upserts a whole snapshot in one transaction
func (s *db) SaveConversations(ctx context.Context, conversations []models.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertConversation)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range conversations {
		if _, err := stmt.ExecContext(ctx, conversationArgs(c)...); err != nil {
			return fmt.Errorf("failed to store conversation %s: %w", c.ChatID, err)
		}
	}

	return tx.Commit()
}

// StoreConversation upserts a single conversation
func (s *db) StoreConversation(ctx context.Context, c models.Conversation) error {
	_, err := s.db.ExecContext(ctx, upsertConversation, conversationArgs(c)...)
	return err
}

func conversationArgs(c models.Conversation) []any {
	var sentAt sql.NullTime
	if !c.LastMessageSentAt.IsZero() {
		sentAt = sql.NullTime{Time: c.LastMessageSentAt.UTC(), Valid: true}
	}
	return []any{
		c.ChatID, c.JeuneID, c.FirstName, c.LastName, c.LastMessageContent, c.LastMessageSentBy,
		sentAt, c.SeenByConseiller, c.FlaggedByConseiller,
	}
}

const selectConversation = `
	SELECT chat_id, jeune_id, first_name, last_name, last_message_content, last_message_sent_by,
		last_message_sent_at, seen_by_conseiller, flagged_by_conseiller
	FROM conversations`

// GetConversations retrieves all conversations
func (s *db) GetConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, selectConversation+" ORDER BY last_message_sent_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

// GetConversationsByJeunes retrieves the conversations of the given jeunes
func (s *db) GetConversationsByJeunes(ctx context.Context, jeuneIDs []string) ([]models.Conversation, error) {
	if len(jeuneIDs) == 0 {
		return []models.Conversation{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jeuneIDs)), ",")
	args := make([]any, 0, len(jeuneIDs))
	for _, id := range jeuneIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, selectConversation+" WHERE jeune_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanConversations(rows)
}

// GetConversation retrieves a specific conversation
func (s *db) GetConversation(ctx context.Context, chatID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, selectConversation+" WHERE chat_id = ?", chatID)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetSeen marks a conversation as seen by the conseiller
func (s *db) SetSeen(ctx context.Context, chatID string) error {
	return s.updateFlag(ctx, "UPDATE conversations SET seen_by_conseiller = 1 WHERE chat_id = ?", chatID)
}

// SetFlagged sets the conseiller flag of a conversation
func (s *db) SetFlagged(ctx context.Context, chatID string, flagged bool) error {
	return s.updateFlag(ctx, "UPDATE conversations SET flagged_by_conseiller = ? WHERE chat_id = ?", flagged, chatID)
}

func (s *db) updateFlag(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StoreMessage stores a message in the database
func (s *db) StoreMessage(ctx context.Context, msg models.Message) error {
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return nil
	}

	var attachments sql.NullString
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		attachments = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
		(id, chat_id, content, sent_by, type, attachments, creation_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.Content, msg.SentBy, msg.Type, attachments, msg.CreationDate.UTC(),
	)
	return err
}

// GetMessages retrieves the latest messages from a conversation
func (s *db) GetMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, content, sent_by, type, attachments, creation_date FROM messages WHERE chat_id = ? ORDER BY creation_date DESC LIMIT ?",
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var attachments sql.NullString
		var msgType sql.NullString
		err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Content, &msg.SentBy, &msgType, &attachments, &msg.CreationDate)
		if err != nil {
			return nil, err
		}
		msg.Type = msgType.String
		if attachments.Valid {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments of message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (models.Conversation, error) {
	var c models.Conversation
	var firstName, lastName, content, sentBy sql.NullString
	var sentAt sql.NullTime

	err := row.Scan(&c.ChatID, &c.JeuneID, &firstName, &lastName, &content, &sentBy,
		&sentAt, &c.SeenByConseiller, &c.FlaggedByConseiller)
	if err != nil {
		return models.Conversation{}, err
	}

	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.LastMessageContent = content.String
	c.LastMessageSentBy = sentBy.String
	if sentAt.Valid {
		c.LastMessageSentAt = sentAt.Time.In(time.UTC)
	}

	return c, nil
}

func scanConversations(rows *sql.Rows) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}
