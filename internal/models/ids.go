package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ThreadID is the server-assigned, stable identity of a conversation thread.
type ThreadID int64

func (id ThreadID) String() string { return strconv.FormatInt(int64(id), 10) }

// UserID identifies a user on the backend.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// IDSpace is the namespace a MessageID was drawn from.
type IDSpace uint8

const (
	// IDSpaceNone marks the zero MessageID.
	IDSpaceNone IDSpace = iota
	// IDSpaceServer ids are assigned by the backend and globally ordered by creation.
	IDSpaceServer
	// IDSpaceLocal ids are assigned by the client for provisional messages.
	IDSpaceLocal
)

// MessageID is a tagged message identifier. Server and local ids live in
// disjoint namespaces: ServerID(5) and LocalID(5) never compare equal.
type MessageID struct {
	space IDSpace
	n     int64
}

// ServerID returns a confirmed message id.
func ServerID(n int64) MessageID {
	return MessageID{space: IDSpaceServer, n: n}
}

// LocalID returns a provisional message id.
func LocalID(n int64) MessageID {
	return MessageID{space: IDSpaceLocal, n: n}
}

// Space returns the namespace of the id.
func (id MessageID) Space() IDSpace { return id.space }

// Value returns the numeric part of the id. It is only meaningful together with Space.
func (id MessageID) Value() int64 { return id.n }

// IsZero reports whether the id was never assigned.
func (id MessageID) IsZero() bool { return id.space == IDSpaceNone }

// IsLocal reports whether the id identifies a provisional message.
func (id MessageID) IsLocal() bool { return id.space == IDSpaceLocal }

// IsServer reports whether the id identifies a confirmed message.
func (id MessageID) IsServer() bool { return id.space == IDSpaceServer }

func (id MessageID) String() string {
	switch id.space {
	case IDSpaceServer:
		return strconv.FormatInt(id.n, 10)
	case IDSpaceLocal:
		return "local:" + strconv.FormatInt(id.n, 10)
	default:
		return ""
	}
}

// ParseMessageID parses the String form of a MessageID. Bare integers are server ids.
func ParseMessageID(raw string) (MessageID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MessageID{}, ErrInvalidMessageID
	}
	space := IDSpaceServer
	if rest, ok := strings.CutPrefix(raw, "local:"); ok {
		space = IDSpaceLocal
		raw = rest
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return MessageID{}, fmt.Errorf("%w: %q", ErrInvalidMessageID, raw)
	}
	return MessageID{space: space, n: n}, nil
}

// MarshalJSON encodes server ids as numbers and local ids as "local:<n>" strings.
func (id MessageID) MarshalJSON() ([]byte, error) {
	switch id.space {
	case IDSpaceServer:
		return []byte(strconv.FormatInt(id.n, 10)), nil
	case IDSpaceLocal:
		return json.Marshal(id.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number (server id) or a string in String form.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*id = MessageID{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseMessageID(raw)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessageID, trimmed)
	}
	*id = ServerID(n)
	return nil
}
