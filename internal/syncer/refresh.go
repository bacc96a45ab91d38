package syncer

import (
	"context"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/metrics"
	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/poll"
)

// RefreshList fetches and applies a thread list snapshot. It implements
// poll.Refresher; failures are logged and retried on the next tick.
func (e *Engine) RefreshList(ctx context.Context, seq uint64) {
	if err := e.refreshList(ctx, seq); err != nil {
		e.metrics.PollFailed(poll.ScopeList)
		if ctx.Err() != nil {
			return
		}
		e.logger.Warn().Err(err).Uint64("seq", seq).Msg("thread list refresh failed")
	}
}

func (e *Engine) refreshList(ctx context.Context, seq uint64) error {
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()

	snapshot, err := e.backend.ListThreads(reqCtx)
	if err != nil {
		return err
	}

	if e.config.SequenceSnapshots && !e.scheduler.ListScope().Sequencer().Accept(seq) {
		e.metrics.SnapshotDiscarded(poll.ScopeList, metrics.ReasonStale)
		e.logger.Debug().Uint64("seq", seq).Msg("stale thread list discarded")
		return nil
	}

	if reported := e.threads.RefreshListKeeping(snapshot, e.tracker.BlockPending); reported > 0 {
		if active, ok := e.threads.Active(); ok {
			e.flagAck(active)
		}
	}
	e.publish(models.EventTypeThreadsUpdated, 0, nil)

	if e.cache != nil {
		if err := e.cache.SaveThreads(ctx, e.threads.List()); err != nil {
			e.logger.Warn().Err(err).Msg("failed to cache thread list")
		}
	}
	return nil
}

// Refresh fetches the thread list outside the poll cadence.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.refreshList(ctx, e.scheduler.ListScope().Sequencer().Next())
}

// refreshListAsync schedules an out-of-band list refresh, e.g. after a send.
func (e *Engine) refreshListAsync() {
	e.goBackground(func(ctx context.Context) {
		seq := e.scheduler.ListScope().Sequencer().Next()
		e.RefreshList(ctx, seq)
	})
}

// RefreshThread fetches and applies a message snapshot for thread. It
// implements poll.Refresher; failures are logged and retried on the next tick.
func (e *Engine) RefreshThread(ctx context.Context, thread models.ThreadID, seq uint64) {
	if err := e.refreshThread(ctx, thread, seq); err != nil {
		e.metrics.PollFailed(poll.ScopeThread)
		if ctx.Err() != nil {
			return
		}
		logger := logging.WithThread(e.logger, int64(thread))
		logger.Warn().Err(err).Uint64("seq", seq).Msg("message refresh failed")
	}
}

// Reload refetches the open thread's messages outside the poll cadence.
func (e *Engine) Reload(ctx context.Context) error {
	thread, ok := e.messages.Thread()
	if !ok {
		return ErrNoActiveThread
	}
	return e.refreshThread(ctx, thread, e.scheduler.ThreadScope().Sequencer().Next())
}

func (e *Engine) refreshThread(ctx context.Context, thread models.ThreadID, seq uint64) error {
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()

	snapshot, err := e.backend.ListMessages(reqCtx, thread)
	if err != nil {
		return err
	}

	logger := logging.WithThread(e.logger, int64(thread))
	if current, ok := e.messages.Thread(); !ok || current != thread {
		e.metrics.SnapshotDiscarded(poll.ScopeThread, metrics.ReasonWrongThread)
		logger.Debug().Uint64("seq", seq).Msg("snapshot for inactive thread discarded")
		return nil
	}
	if e.config.SequenceSnapshots && !e.scheduler.ThreadScope().Sequencer().Accept(seq) {
		e.metrics.SnapshotDiscarded(poll.ScopeThread, metrics.ReasonStale)
		logger.Debug().Uint64("seq", seq).Msg("stale message snapshot discarded")
		return nil
	}
	if !e.messages.LoadSnapshot(thread, snapshot) {
		e.metrics.SnapshotDiscarded(poll.ScopeThread, metrics.ReasonWrongThread)
		return nil
	}
	e.publish(models.EventTypeMessagesUpdated, thread, nil)

	if e.cache != nil {
		if err := e.cache.SaveMessages(ctx, thread, e.messages.Confirmed()); err != nil {
			logger.Warn().Err(err).Msg("failed to cache messages")
		}
	}

	e.gateRead(thread, snapshot)
	e.tracker.Prune(e.config.PruneAfter)
	return nil
}

// gateRead re-acknowledges the open thread when the list reported unread
// messages for it, or when the snapshot still carries unread messages from
// other participants.
func (e *Engine) gateRead(thread models.ThreadID, snapshot []models.Message) {
	e.ackMu.Lock()
	due := e.ackDue[thread]
	delete(e.ackDue, thread)
	e.ackMu.Unlock()

	if !due && e.config.SelfUserID != 0 {
		for _, msg := range snapshot {
			if !msg.Read && msg.SenderID != e.config.SelfUserID {
				due = true
				break
			}
		}
	}
	if !due {
		return
	}
	if active, ok := e.threads.Active(); !ok || active != thread {
		return
	}
	e.threads.MarkRead(thread)
	e.ackAsync(thread)
}

func (e *Engine) flagAck(thread models.ThreadID) {
	e.ackMu.Lock()
	defer e.ackMu.Unlock()
	e.ackDue[thread] = true
}

// ackAsync sends a read acknowledgement. If one is already in flight for
// thread, another is sent once it returns.
func (e *Engine) ackAsync(thread models.ThreadID) {
	e.ackMu.Lock()
	if e.acking[thread] {
		e.ackAgain[thread] = true
		e.ackMu.Unlock()
		return
	}
	e.acking[thread] = true
	e.ackMu.Unlock()

	started := e.goBackground(func(ctx context.Context) {
		for {
			e.markRead(ctx, thread)

			e.ackMu.Lock()
			again := e.ackAgain[thread] && ctx.Err() == nil
			delete(e.ackAgain, thread)
			if !again {
				delete(e.acking, thread)
			}
			e.ackMu.Unlock()
			if !again {
				return
			}
		}
	})
	if !started {
		e.ackMu.Lock()
		delete(e.acking, thread)
		e.ackMu.Unlock()
	}
}

func (e *Engine) markRead(ctx context.Context, thread models.ThreadID) {
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()

	if err := e.backend.MarkRead(reqCtx, thread); err != nil {
		logger := logging.WithThread(e.logger, int64(thread))
		logger.Debug().Err(err).Msg("read acknowledgement failed")
	}
}
