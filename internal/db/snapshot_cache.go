package db

import (
	"context"

	"github.com/tOgg1/parley/internal/models"
)

// SnapshotCache stores the last applied thread list and per-thread message
// snapshots so a restarted engine can render before its first poll returns.
type SnapshotCache struct {
	threads  *ThreadRepository
	messages *MessageRepository
}

// NewSnapshotCache creates a SnapshotCache on db. Migrations must be applied.
func NewSnapshotCache(db *DB) *SnapshotCache {
	return &SnapshotCache{
		threads:  NewThreadRepository(db),
		messages: NewMessageRepository(db),
	}
}

// LoadThreads returns the cached thread list.
func (c *SnapshotCache) LoadThreads(ctx context.Context) ([]models.Thread, error) {
	return c.threads.List(ctx)
}

// SaveThreads replaces the cached thread list.
func (c *SnapshotCache) SaveThreads(ctx context.Context, threads []models.Thread) error {
	return c.threads.ReplaceAll(ctx, threads)
}

// LoadMessages returns the cached confirmed messages of thread.
func (c *SnapshotCache) LoadMessages(ctx context.Context, thread models.ThreadID) ([]models.Message, error) {
	return c.messages.ListByThread(ctx, thread)
}

// SaveMessages replaces the cached confirmed messages of thread.
func (c *SnapshotCache) SaveMessages(ctx context.Context, thread models.ThreadID, msgs []models.Message) error {
	return c.messages.ReplaceThread(ctx, thread, msgs)
}
