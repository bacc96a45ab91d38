package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tOgg1/parley/internal/models"
)

// ThreadRepository persists the cached thread list.
type ThreadRepository struct {
	db *DB
}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// ReplaceAll replaces the cached list with threads, preserving their order.
func (r *ThreadRepository) ReplaceAll(ctx context.Context, threads []models.Thread) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM threads`); err != nil {
			return fmt.Errorf("failed to clear threads: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO threads (
				id, position, kind, display_name, avatar_ref, last_message_preview,
				last_message_time, unread_count, online, blocked, peer_id, bio, birthdate, cached_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare thread insert: %w", err)
		}
		defer stmt.Close()

		for i, thread := range threads {
			unread := thread.UnreadCount
			if unread < 0 {
				unread = 0
			}
			_, err := stmt.ExecContext(ctx,
				int64(thread.ID),
				i,
				string(thread.Kind),
				thread.DisplayName,
				thread.AvatarRef,
				thread.LastMessagePreview,
				formatTime(thread.LastMessageTime),
				unread,
				boolToInt(thread.Online),
				boolToInt(thread.Blocked),
				int64(thread.PeerID),
				thread.Bio,
				thread.Birthdate,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert thread %d: %w", thread.ID, err)
			}
		}
		return nil
	})
}

// List returns the cached threads in their stored order.
func (r *ThreadRepository) List(ctx context.Context) ([]models.Thread, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, display_name, avatar_ref, last_message_preview, last_message_time,
			unread_count, online, blocked, peer_id, bio, birthdate
		FROM threads
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var (
			thread          models.Thread
			id, peerID      int64
			kind            string
			lastMessageTime sql.NullString
			online, blocked int
		)
		if err := rows.Scan(
			&id, &kind, &thread.DisplayName, &thread.AvatarRef, &thread.LastMessagePreview,
			&lastMessageTime, &thread.UnreadCount, &online, &blocked, &peerID,
			&thread.Bio, &thread.Birthdate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		thread.ID = models.ThreadID(id)
		thread.Kind = models.ThreadKind(kind)
		thread.PeerID = models.UserID(peerID)
		thread.Online = online != 0
		thread.Blocked = blocked != 0
		thread.LastMessageTime = parseTime(lastMessageTime)
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}
	return threads, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
