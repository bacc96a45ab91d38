package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
)

// ListThreads fetches the thread list, ordered by recency.
func (c *Client) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var wire []wireThread
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, nil, &wire); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	threads := make([]models.Thread, 0, len(wire))
	for _, w := range wire {
		thread := w.toModel()
		if err := thread.Validate(); err != nil {
			c.logger.Warn().Err(err).Int64("thread_id", w.ID).Msg("invalid thread skipped")
			continue
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

// ListMessages fetches the messages of a thread.
func (c *Client) ListMessages(ctx context.Context, thread models.ThreadID) ([]models.Message, error) {
	var wire []wireMessage
	if err := c.doJSON(ctx, http.MethodGet, threadPath(thread, "messages"), nil, nil, &wire); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		msg := w.toModel(thread)
		if err := msg.Validate(); err != nil {
			c.logger.Warn().Err(err).
				Int64("thread_id", int64(thread)).
				Int64("message_id", w.ID).
				Msg("invalid message skipped")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// SendMessage posts a message as multipart form data: the text in "content"
// and one "files" part per attachment. It returns the confirmed message.
func (c *Client) SendMessage(ctx context.Context, thread models.ThreadID, text string, files []staging.File) (models.Message, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMessageForm(form, text, files))
	}()

	body, err := c.do(ctx, http.MethodPost, threadPath(thread, "messages"), nil, form.FormDataContentType(), pr)
	pr.Close()
	if err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	var wire wireMessage
	if err := decodeBody(body, &wire); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	if wire.ID <= 0 {
		return models.Message{}, fmt.Errorf("send message: %w: missing message id", ErrInvalidResponse)
	}
	return wire.toModel(thread), nil
}

func writeMessageForm(form *multipart.Writer, text string, files []staging.File) error {
	if err := form.WriteField("content", text); err != nil {
		return err
	}
	for _, file := range files {
		if err := writeFilePart(form, file); err != nil {
			return err
		}
	}
	return form.Close()
}

func writeFilePart(form *multipart.Writer, file staging.File) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Name))
	contentType := file.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", file.Name, err)
	}
	defer src.Close()
	_, err = io.Copy(part, src)
	return err
}

// DeleteMessage deletes a confirmed message.
func (c *Client) DeleteMessage(ctx context.Context, thread models.ThreadID, id models.MessageID) error {
	if !id.IsServer() {
		return fmt.Errorf("delete message: %w", models.ErrInvalidMessageID)
	}
	path := threadPath(thread, "messages", strconv.FormatInt(id.Value(), 10))
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// MarkRead acknowledges that the thread has been read.
func (c *Client) MarkRead(ctx context.Context, thread models.ThreadID) error {
	if err := c.doJSON(ctx, http.MethodPost, threadPath(thread, "read"), nil, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Block creates a block relationship with user.
func (c *Client) Block(ctx context.Context, user models.UserID) error {
	body := map[string]int64{"userId": int64(user)}
	if err := c.doJSON(ctx, http.MethodPost, "/users/block", nil, body, nil); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

// Unblock removes the block relationship with user.
func (c *Client) Unblock(ctx context.Context, user models.UserID) error {
	path := "/users/block/" + user.String()
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

// SearchUsers looks up candidate peers. Queries shorter than the configured
// minimum return no results without a request; others are rate limited.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < c.searchMinLength {
		return nil, nil
	}
	if err := c.searchLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	var wire []wireUser
	if err := c.doJSON(ctx, http.MethodGet, "/users/search", url.Values{"query": {query}}, nil, &wire); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	users := make([]models.User, 0, len(wire))
	for _, w := range wire {
		users = append(users, w.toModel())
	}
	return users, nil
}

// StartThread opens or creates a direct thread with user and returns its id.
func (c *Client) StartThread(ctx context.Context, user models.UserID) (models.ThreadID, error) {
	var created wireCreatedChat
	body := map[string]int64{"targetUserId": int64(user)}
	if err := c.doJSON(ctx, http.MethodPost, "/chats", nil, body, &created); err != nil {
		return 0, fmt.Errorf("start thread: %w", err)
	}
	if created.ID <= 0 {
		return 0, fmt.Errorf("start thread: %w: missing chat id", ErrInvalidResponse)
	}
	return models.ThreadID(created.ID), nil
}

func threadPath(thread models.ThreadID, parts ...string) string {
	path := "/chats/" + thread.String()
	if len(parts) > 0 {
		path += "/" + strings.Join(parts, "/")
	}
	return path
}
