package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tOgg1/parley/internal/models"
)

// wireTimeLayouts are the timestamp encodings accepted from the server.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// wireTime decodes RFC3339 or SQL-style timestamps. Empty and null decode to zero.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range wireTimeLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

// wireBool decodes true/false as well as 0/1.
type wireBool bool

func (b *wireBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("bool: unexpected value %s", data)
		}
		*b = n != 0
	}
	return nil
}

type wireAttachment struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type wireMessage struct {
	ID          int64            `json:"id"`
	ChatID      int64            `json:"chat_id"`
	SenderID    int64            `json:"sender_id"`
	Content     string           `json:"content"`
	IsRead      wireBool         `json:"is_read"`
	CreatedAt   wireTime         `json:"created_at"`
	Name        string           `json:"name"`
	Username    string           `json:"username"`
	Avatar      string           `json:"avatar"`
	Attachments []wireAttachment `json:"attachments"`
}

type wireThread struct {
	ID              int64    `json:"id"`
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	Avatar          string   `json:"avatar"`
	LastMessage     string   `json:"last_message"`
	LastMessageTime wireTime `json:"last_message_time"`
	UnreadCount     int      `json:"unread_count"`
	Online          wireBool `json:"online"`
	OtherUserID     int64    `json:"otherUserId"`
	IsBlocked       wireBool `json:"is_blocked"`
	Bio             string   `json:"bio"`
	Birthdate       string   `json:"birthdate"`
}

type wireUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type wireCreatedChat struct {
	ID int64 `json:"id"`
}

func (w wireAttachment) toModel() models.Attachment {
	kind := models.AttachmentKind(strings.ToLower(w.Type))
	switch kind {
	case models.AttachmentKindImage, models.AttachmentKindVideo, models.AttachmentKindFile:
	default:
		kind = models.AttachmentKindFile
	}
	return models.Attachment{ID: w.ID, URL: w.URL, Kind: kind, Name: w.Name}
}

func (w wireMessage) toModel(fallbackThread models.ThreadID) models.Message {
	thread := models.ThreadID(w.ChatID)
	if thread == 0 {
		thread = fallbackThread
	}
	msg := models.Message{
		ID:             models.ServerID(w.ID),
		ThreadID:       thread,
		SenderID:       models.UserID(w.SenderID),
		SenderName:     w.Name,
		SenderUsername: w.Username,
		SenderAvatar:   w.Avatar,
		Content:        w.Content,
		Read:           bool(w.IsRead),
		CreatedAt:      w.CreatedAt.Time,
	}
	if len(w.Attachments) > 0 {
		msg.Attachments = make([]models.Attachment, len(w.Attachments))
		for i, a := range w.Attachments {
			msg.Attachments[i] = a.toModel()
		}
	}
	return msg
}

func (w wireThread) toModel() models.Thread {
	kind := models.ThreadKindDirect
	if strings.EqualFold(w.Type, string(models.ThreadKindGroup)) {
		kind = models.ThreadKindGroup
	}
	thread := models.Thread{
		ID:                 models.ThreadID(w.ID),
		Kind:               kind,
		DisplayName:        w.Name,
		AvatarRef:          w.Avatar,
		LastMessagePreview: w.LastMessage,
		LastMessageTime:    w.LastMessageTime.Time,
		UnreadCount:        w.UnreadCount,
		Online:             bool(w.Online),
		Blocked:            bool(w.IsBlocked),
		PeerID:             models.UserID(w.OtherUserID),
		Bio:                w.Bio,
		Birthdate:          w.Birthdate,
	}
	if thread.UnreadCount < 0 {
		thread.UnreadCount = 0
	}
	return thread
}

func (w wireUser) toModel() models.User {
	return models.User{
		ID:       models.UserID(w.ID),
		Name:     w.Name,
		Username: w.Username,
		Avatar:   w.Avatar,
	}
}
