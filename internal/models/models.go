package models

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyMessage = errors.New("message is empty")
	ErrMissingField = errors.New("required field missing")
)

type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
)

// Presence is the per-user liveness record stored under status/{uid}.
type Presence struct {
	State       PresenceState `msgpack:"state" json:"state"`
	LastChanged int64         `msgpack:"last_changed" json:"last_changed"` // Unix timestamp (milliseconds)
}

// Known reports whether a presence record exists for the user.
// A zero Presence means the user has never connected.
func (p Presence) Known() bool {
	return p.State != ""
}

// Profile is the user-owned record stored under profiles/{uid}.
type Profile struct {
	UID       string `msgpack:"-" json:"uid"`
	Name      string `msgpack:"name" json:"name"`
	CreatedAt int64  `msgpack:"createdAt" json:"createdAt"`
	Avatar    string `msgpack:"avatar,omitempty" json:"avatar,omitempty"`
}

// Author is the snapshot of a sender captured at send time. It is
// embedded in messages and last-message pointers and is never
// live-joined against the profile record.
type Author struct {
	UID       string `msgpack:"uid" json:"uid"`
	Name      string `msgpack:"name" json:"name"`
	CreatedAt int64  `msgpack:"createdAt" json:"createdAt"`
	Avatar    string `msgpack:"avatar,omitempty" json:"avatar,omitempty"`
}

// FileInfo describes an uploaded file attached to a message.
type FileInfo struct {
	ContentType string `msgpack:"contentType" json:"contentType"`
	Name        string `msgpack:"name" json:"name"`
	URL         string `msgpack:"url" json:"url"`
}

// Message is a single chat message. Body is exactly one of Text or File.
type Message struct {
	ID        string          `msgpack:"-" json:"id"`
	Room      string          `msgpack:"room" json:"room"`
	Author    Author          `msgpack:"author" json:"author"`
	CreatedAt int64           `msgpack:"createdAt" json:"createdAt"`
	Text      string          `msgpack:"text,omitempty" json:"text,omitempty"`
	File      *FileInfo       `msgpack:"file,omitempty" json:"file,omitempty"`
	LikeCount int             `msgpack:"likeCount" json:"likeCount"`
	Likes     map[string]bool `msgpack:"likes,omitempty" json:"likes,omitempty"`
}

// LastMessage is the denormalized copy of a room's most recent message,
// plus the identifier of the message it was copied from.
type LastMessage struct {
	Message `msgpack:",inline"`
	MsgID   string `msgpack:"msgId" json:"msgId"`
}

// Room is a chat room stored under rooms/{id}.
type Room struct {
	ID          string          `msgpack:"-" json:"id"`
	Name        string          `msgpack:"name" json:"name"`
	Description string          `msgpack:"description" json:"description"`
	CreatedAt   int64           `msgpack:"createdAt" json:"createdAt"`
	Admins      map[string]bool `msgpack:"admins,omitempty" json:"admins,omitempty"`
	LastMessage *LastMessage    `msgpack:"lastMessage,omitempty" json:"lastMessage,omitempty"`
}
