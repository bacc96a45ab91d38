package models

import (
	"strconv"
	"strings"
	"time"
)

// AttachmentKind classifies an attachment for rendering.
type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindVideo AttachmentKind = "video"
	AttachmentKindFile  AttachmentKind = "file"
)

// PreviewScheme prefixes ephemeral local preview references.
const PreviewScheme = "preview://"

// AttachmentKindFromMIME maps a MIME type to an attachment kind.
func AttachmentKindFromMIME(mimeType string) AttachmentKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return AttachmentKindImage
	case strings.HasPrefix(mimeType, "video/"):
		return AttachmentKindVideo
	default:
		return AttachmentKindFile
	}
}

// Attachment is a file carried by a message. While staged or provisional,
// URL is an ephemeral preview reference; once confirmed it is a permanent remote reference.
type Attachment struct {
	ID   int64          `json:"id"`
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name"`
}

// IsEphemeral reports whether URL is a local preview reference.
func (a *Attachment) IsEphemeral() bool {
	return strings.HasPrefix(a.URL, PreviewScheme)
}

// Validate checks the attachment fields.
func (a *Attachment) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(a.URL) == "" {
		validation.Add("url", ErrInvalidAttachment)
	}
	switch a.Kind {
	case AttachmentKindImage, AttachmentKindVideo, AttachmentKindFile:
	default:
		validation.Add("kind", ErrInvalidAttachmentKind)
	}
	return validation.Err()
}

// Message is one entry of a thread's message list.
type Message struct {
	// ID is a server id once confirmed, or a local id while provisional.
	ID MessageID `json:"id"`

	// ThreadID is the owning thread.
	ThreadID ThreadID `json:"thread_id"`

	// SenderID is the author.
	SenderID UserID `json:"sender_id"`

	// SenderName and SenderUsername are display hints supplied by the server.
	SenderName     string `json:"sender_name,omitempty"`
	SenderUsername string `json:"sender_username,omitempty"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`

	// Content is the text body; may be empty when attachments are present.
	Content string `json:"content"`

	// Attachments in display order.
	Attachments []Attachment `json:"attachments,omitempty"`

	// Read is the server's read flag for the message.
	Read bool `json:"read"`

	// CreatedAt orders messages within a thread.
	CreatedAt time.Time `json:"created_at"`
}

// IsProvisional reports whether the message has not been confirmed by the server.
func (m *Message) IsProvisional() bool {
	return m.ID.IsLocal()
}

// Preview returns a one-line rendering used for thread list previews.
func (m *Message) Preview() string {
	content := strings.TrimSpace(m.Content)
	if content != "" {
		if idx := strings.IndexByte(content, '\n'); idx >= 0 {
			content = content[:idx]
		}
		return content
	}
	if len(m.Attachments) > 0 {
		return "[" + string(m.Attachments[0].Kind) + "]"
	}
	return ""
}

// Validate checks the message fields.
func (m *Message) Validate() error {
	validation := &ValidationErrors{}
	if m.ID.IsZero() || m.ID.Value() <= 0 {
		validation.Add("id", ErrInvalidMessageID)
	}
	if m.ThreadID <= 0 {
		validation.Add("thread_id", ErrInvalidThreadID)
	}
	if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 {
		validation.Add("content", ErrEmptyMessageBody)
	}
	for i := range m.Attachments {
		validation.Add(attachmentField(i), m.Attachments[i].Validate())
	}
	return validation.Err()
}

func attachmentField(i int) string {
	return "attachments[" + strconv.Itoa(i) + "]"
}

// CloneMessage returns a deep copy of the message.
func CloneMessage(m Message) Message {
	out := m
	if len(m.Attachments) > 0 {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i := range in {
		out[i] = CloneMessage(in[i])
	}
	return out
}
