package models

import "errors"

// Validation sentinels.
var (
	ErrInvalidThreadID       = errors.New("thread id must be positive")
	ErrInvalidUserID         = errors.New("user id must be positive")
	ErrInvalidThreadKind     = errors.New("thread kind must be direct or group")
	ErrNegativeUnread        = errors.New("unread count cannot be negative")
	ErrInvalidMessageID      = errors.New("invalid message id")
	ErrInvalidAttachment     = errors.New("attachment url is required")
	ErrInvalidAttachmentKind = errors.New("attachment kind must be image, video or file")
	ErrEmptyMessageBody      = errors.New("message needs content or attachments")
	ErrInvalidTransition     = errors.New("invalid mutation status transition")
)
