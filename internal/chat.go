package internal

import (
	"encoding/json"
	"time"

	"sharehub/internal/files"
)

// Event names on the websocket channel, both directions.
const (
	EventJoinRoom    = "join-room"
	EventSendMessage = "send-message"
	EventTyping      = "typing"

	EventRoomJoined = "room-joined"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventError      = "error"
)

// Message kinds.
const (
	KindText = "text"
	KindFile = "file"
)

// Error codes sent in error events.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeUsernameRequired = "USERNAME_REQUIRED"
	CodeNotJoined        = "NOT_JOINED"
	CodeNotFound         = "NOT_FOUND"
)

// Envelope wraps every frame: {"event": ..., "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type SendMessageData struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
	FileID  string `json:"fileId,omitempty"`
}

type TypingData struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ChatMessage is one entry of a room's history. FileInfo is a snapshot of
// the file taken when the message was sent.
type ChatMessage struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Username  string      `json:"username"`
	Message   string      `json:"message,omitempty"`
	FileID    string      `json:"fileId,omitempty"`
	FileInfo  *files.View `json:"fileInfo,omitempty"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

type RoomJoinedData struct {
	RoomID   string        `json:"roomId"`
	Users    []string      `json:"users"`
	Messages []ChatMessage `json:"messages"`
}

type UserEventData struct {
	RoomID   string   `json:"roomId"`
	Username string   `json:"username"`
	Users    []string `json:"users"`
}

type UserTypingData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// encodeEvent builds a wire frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
