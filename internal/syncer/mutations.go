package syncer

import (
	"context"
	"errors"
	"strings"

	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/messages"
	"github.com/tOgg1/parley/internal/metrics"
	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/mutation"
	"github.com/tOgg1/parley/internal/staging"
)

// Send posts text and the staged attachments to the open thread. The message
// appears at once under a local id and is replaced by the server copy on
// success, or removed on failure. A blocked thread rejects the send without
// touching the staged files.
func (e *Engine) Send(ctx context.Context, text string) (models.Message, error) {
	thread, ok := e.messages.Thread()
	if !ok {
		return models.Message{}, ErrNoActiveThread
	}
	if strings.TrimSpace(text) == "" && e.staging.Len() == 0 {
		return models.Message{}, ErrEmptyMessage
	}
	if summary, found := e.threads.Get(thread); found && summary.Blocked {
		e.metrics.MutationRejected(string(models.MutationKindSend))
		e.notice(thread, ErrThreadBlocked.Error())
		return models.Message{}, ErrThreadBlocked
	}

	pending, err := e.tracker.Begin(mutation.Request{
		Kind:     models.MutationKindSend,
		ThreadID: thread,
		Text:     text,
	})
	if err != nil {
		return models.Message{}, err
	}
	e.metrics.MutationStarted()

	committed, err := e.staging.Commit(pending.LocalID)
	if err != nil {
		return models.Message{}, e.failSend(pending, err)
	}
	files := make([]staging.File, 0, len(committed))
	attachments := make([]models.Attachment, 0, len(committed))
	refs := make([]models.AttachmentRef, 0, len(committed))
	for _, c := range committed {
		files = append(files, c.File)
		attachments = append(attachments, c.Attachment)
		refs = append(refs, models.AttachmentRef{Name: c.File.Name, Path: c.File.Path})
	}
	if len(attachments) == 0 {
		attachments = nil
	} else if err := e.tracker.SetAttachments(pending.LocalID, refs); err != nil {
		return models.Message{}, e.failSend(pending, err)
	}

	provisional := models.Message{
		ID:          pending.LocalID,
		ThreadID:    thread,
		SenderID:    e.config.SelfUserID,
		Content:     text,
		Attachments: attachments,
		Read:        true,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.messages.AppendOptimistic(provisional); err != nil {
		return models.Message{}, e.failSend(pending, err)
	}
	if len(committed) > 0 {
		e.publish(models.EventTypeStagingUpdated, 0, nil)
	}
	e.publishMutation(models.EventTypeMutationStarted, pending)
	e.publish(models.EventTypeMessagesUpdated, thread, nil)

	reqCtx, cancel := e.requestContext(ctx)
	confirmed, err := e.backend.SendMessage(reqCtx, thread, text, files)
	cancel()
	if err != nil {
		return models.Message{}, e.failSend(pending, err)
	}
	if confirmed.ThreadID == 0 {
		confirmed.ThreadID = thread
	}

	resolved, err := e.tracker.Confirm(pending.LocalID, confirmed.ID)
	if err != nil {
		return models.Message{}, e.failSend(pending, err)
	}
	e.messages.ResolveOptimistic(pending.LocalID, messages.Success(confirmed))
	e.staging.Release(pending.LocalID)
	e.metrics.MutationResolved(string(models.MutationKindSend), metrics.OutcomeConfirmed)

	e.publishMutation(models.EventTypeMutationConfirmed, resolved)
	e.publish(models.EventTypeMessagesUpdated, thread, nil)
	e.refreshListAsync()

	logger := logging.WithThread(e.logger, int64(thread))
	logger.Debug().
		Str("local_id", pending.LocalID.String()).
		Str("message_id", confirmed.ID.String()).
		Int("attachments", len(files)).
		Msg("message sent")
	return confirmed, nil
}

func (e *Engine) failSend(pending models.PendingMutation, cause error) error {
	text := failureText(models.MutationKindSend, cause)
	failed, err := e.tracker.Fail(pending.LocalID, text)
	if err != nil {
		failed = pending
	}
	e.messages.ResolveOptimistic(pending.LocalID, messages.Failure(cause))
	e.staging.Release(pending.LocalID)
	e.metrics.MutationResolved(string(models.MutationKindSend), metrics.OutcomeFailed)

	e.publishMutation(models.EventTypeMutationFailed, failed)
	e.publish(models.EventTypeMessagesUpdated, pending.ThreadID, nil)
	e.notice(pending.ThreadID, text)

	logger := logging.WithThread(e.logger, int64(pending.ThreadID))
	logger.Warn().Err(cause).Str("local_id", pending.LocalID.String()).Msg("send failed")
	return &MutationError{Kind: models.MutationKindSend, LocalID: pending.LocalID, Err: cause}
}

// Delete removes a confirmed message from the open thread. The message
// disappears at once; if the server rejects the delete the thread is reloaded
// and the message reappears.
func (e *Engine) Delete(ctx context.Context, id models.MessageID) error {
	if !id.IsServer() {
		return ErrNotDeletable
	}
	thread, ok := e.messages.Thread()
	if !ok {
		return ErrNoActiveThread
	}
	msg, found := e.messages.Get(id)
	if !found {
		return ErrNotDeletable
	}
	if e.config.SelfUserID != 0 && msg.SenderID != e.config.SelfUserID {
		return ErrNotDeletable
	}

	pending, err := e.tracker.Begin(mutation.Request{
		Kind:     models.MutationKindDelete,
		ThreadID: thread,
		Target:   id,
	})
	if err != nil {
		return err
	}
	e.metrics.MutationStarted()

	if _, err := e.messages.RemoveConfirmed(id); err != nil && !errors.Is(err, messages.ErrNotFound) {
		return e.failDelete(ctx, pending, err)
	}
	e.publishMutation(models.EventTypeMutationStarted, pending)
	e.publish(models.EventTypeMessagesUpdated, thread, nil)

	reqCtx, cancel := e.requestContext(ctx)
	err = e.backend.DeleteMessage(reqCtx, thread, id)
	cancel()
	if err != nil {
		return e.failDelete(ctx, pending, err)
	}

	resolved, err := e.tracker.Confirm(pending.LocalID, models.MessageID{})
	if err != nil {
		return err
	}
	e.metrics.MutationResolved(string(models.MutationKindDelete), metrics.OutcomeConfirmed)
	e.publishMutation(models.EventTypeMutationConfirmed, resolved)
	e.refreshListAsync()

	logger := logging.WithThread(e.logger, int64(thread))
	logger.Debug().Str("message_id", id.String()).Msg("message deleted")
	return nil
}

func (e *Engine) failDelete(ctx context.Context, pending models.PendingMutation, cause error) error {
	text := failureText(models.MutationKindDelete, cause)
	failed, err := e.tracker.Fail(pending.LocalID, text)
	if err != nil {
		failed = pending
	}
	e.metrics.MutationResolved(string(models.MutationKindDelete), metrics.OutcomeFailed)
	e.publishMutation(models.EventTypeMutationFailed, failed)
	e.notice(pending.ThreadID, text)

	logger := logging.WithThread(e.logger, int64(pending.ThreadID))
	logger.Warn().Err(cause).Str("message_id", pending.Target.String()).Msg("delete failed, reloading thread")

	if current, ok := e.messages.Thread(); ok && current == pending.ThreadID {
		reloadCtx := ctx
		if reloadCtx.Err() != nil {
			reloadCtx = e.ctx
		}
		if err := e.Reload(reloadCtx); err != nil {
			logger.Warn().Err(err).Msg("reload after failed delete failed")
		}
	}
	return &MutationError{Kind: models.MutationKindDelete, LocalID: pending.LocalID, Err: cause}
}

// ToggleBlock flips the blocked flag of a direct thread.
func (e *Engine) ToggleBlock(ctx context.Context, thread models.ThreadID) error {
	summary, ok := e.threads.Get(thread)
	if !ok {
		return ErrThreadNotFound
	}
	return e.SetBlocked(ctx, thread, !summary.Blocked)
}

// SetBlocked blocks or unblocks the peer of a direct thread. The flag is
// applied locally at once; on failure the next list refresh restores the
// server's view.
func (e *Engine) SetBlocked(ctx context.Context, thread models.ThreadID, blocked bool) error {
	summary, ok := e.threads.Get(thread)
	if !ok {
		return ErrThreadNotFound
	}
	if !summary.IsDirect() || summary.PeerID <= 0 {
		return ErrNotDirectThread
	}
	if summary.Blocked == blocked {
		return nil
	}

	kind := models.MutationKindUnblock
	if blocked {
		kind = models.MutationKindBlock
	}
	pending, err := e.tracker.Begin(mutation.Request{
		Kind:     kind,
		ThreadID: thread,
		PeerID:   summary.PeerID,
	})
	if err != nil {
		return err
	}
	e.metrics.MutationStarted()

	e.threads.SetBlocked(thread, blocked)
	e.publishMutation(models.EventTypeMutationStarted, pending)
	e.publish(models.EventTypeThreadsUpdated, 0, nil)

	reqCtx, cancel := e.requestContext(ctx)
	if blocked {
		err = e.backend.Block(reqCtx, summary.PeerID)
	} else {
		err = e.backend.Unblock(reqCtx, summary.PeerID)
	}
	cancel()

	logger := logging.WithThread(e.logger, int64(thread))
	if err != nil {
		text := failureText(kind, err)
		failed, ferr := e.tracker.Fail(pending.LocalID, text)
		if ferr != nil {
			failed = pending
		}
		e.metrics.MutationResolved(string(kind), metrics.OutcomeFailed)
		e.publishMutation(models.EventTypeMutationFailed, failed)
		e.notice(thread, text)
		e.refreshListAsync()

		logger.Warn().Err(err).Str("kind", string(kind)).Msg("block state change failed")
		return &MutationError{Kind: kind, LocalID: pending.LocalID, Err: err}
	}

	// Lists requested while the change was in flight may predate it.
	if e.config.SequenceSnapshots {
		e.scheduler.ListScope().Sequencer().Fence()
	}
	resolved, err := e.tracker.Confirm(pending.LocalID, models.MessageID{})
	if err != nil {
		return err
	}
	e.metrics.MutationResolved(string(kind), metrics.OutcomeConfirmed)
	e.publishMutation(models.EventTypeMutationConfirmed, resolved)
	logger.Debug().Bool("blocked", blocked).Msg("block state changed")
	return nil
}

// SearchUsers looks up candidate peers. A blank query returns no users without a request.
func (e *Engine) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	reqCtx, cancel := e.requestContext(ctx)
	defer cancel()
	return e.backend.SearchUsers(reqCtx, query)
}

// StartThread opens a direct conversation with user, creating it on the
// server if needed, and makes it the active thread.
func (e *Engine) StartThread(ctx context.Context, user models.UserID) (models.Thread, error) {
	if user <= 0 {
		return models.Thread{}, models.ErrInvalidUserID
	}

	reqCtx, cancel := e.requestContext(ctx)
	id, err := e.backend.StartThread(reqCtx, user)
	cancel()
	if err != nil {
		return models.Thread{}, err
	}
	if id <= 0 {
		return models.Thread{}, models.ErrInvalidThreadID
	}

	if err := e.refreshList(ctx, e.scheduler.ListScope().Sequencer().Next()); err != nil {
		e.logger.Warn().Err(err).Msg("thread list refresh after start failed")
	}
	if _, ok := e.threads.Get(id); !ok {
		e.threads.Upsert(models.Thread{ID: id, Kind: models.ThreadKindDirect, PeerID: user})
		e.publish(models.EventTypeThreadsUpdated, 0, nil)
	}

	if err := e.OpenThread(ctx, id); err != nil {
		return models.Thread{}, err
	}
	summary, _ := e.threads.Get(id)
	return summary, nil
}
