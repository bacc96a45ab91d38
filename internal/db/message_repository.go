package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tOgg1/parley/internal/models"
)

// MessageRepository persists cached confirmed messages per thread.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ReplaceThread replaces the cached messages of thread. Provisional messages
// are skipped; only server-confirmed messages are persisted.
func (r *MessageRepository) ReplaceThread(ctx context.Context, thread models.ThreadID, msgs []models.Message) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, int64(thread)); err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO messages (
				id, thread_id, position, sender_id, sender_name, sender_username, sender_avatar,
				content, read, created_at, attachments_json, cached_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare message insert: %w", err)
		}
		defer stmt.Close()

		position := 0
		for _, msg := range msgs {
			if !msg.ID.IsServer() {
				continue
			}
			var attachmentsJSON *string
			if len(msg.Attachments) > 0 {
				data, err := json.Marshal(msg.Attachments)
				if err != nil {
					return fmt.Errorf("failed to marshal attachments: %w", err)
				}
				s := string(data)
				attachmentsJSON = &s
			}

			_, err := stmt.ExecContext(ctx,
				msg.ID.Value(),
				int64(thread),
				position,
				int64(msg.SenderID),
				msg.SenderName,
				msg.SenderUsername,
				msg.SenderAvatar,
				msg.Content,
				boolToInt(msg.Read),
				msg.CreatedAt.UTC().Format(time.RFC3339Nano),
				attachmentsJSON,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
			}
			position++
		}
		return nil
	})
}

// ListByThread returns the cached messages of thread in stored order.
func (r *MessageRepository) ListByThread(ctx context.Context, thread models.ThreadID) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_id, sender_name, sender_username, sender_avatar, content, read,
			created_at, attachments_json
		FROM messages
		WHERE thread_id = ?
		ORDER BY position ASC
	`, int64(thread))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var (
			msg             models.Message
			id, senderID    int64
			read            int
			createdAt       sql.NullString
			attachmentsJSON sql.NullString
		)
		if err := rows.Scan(
			&id, &senderID, &msg.SenderName, &msg.SenderUsername, &msg.SenderAvatar,
			&msg.Content, &read, &createdAt, &attachmentsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ID = models.ServerID(id)
		msg.ThreadID = thread
		msg.SenderID = models.UserID(senderID)
		msg.Read = read != 0
		msg.CreatedAt = parseTime(createdAt)
		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
			}
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// DeleteThread drops the cached messages of thread.
func (r *MessageRepository) DeleteThread(ctx context.Context, thread models.ThreadID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, int64(thread)); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
