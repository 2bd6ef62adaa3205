// Package protocol defines the realtime chat wire format shared by the
// server hub and pkg/chatclient.
//
// Every frame is a JSON envelope {"event": "...", "data": {...}}. A single
// websocket frame may carry several envelopes separated by '\n'.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a realtime event.
type EventType string

const (
	// client -> server
	EventRegisterUser EventType = "register-user"
	EventJoinChat     EventType = "join-chat"
	EventSendMessage  EventType = "send-message"
	EventTyping       EventType = "typing"

	// server -> client
	EventReceiveMessage EventType = "receive-message"
	EventUserTyping     EventType = "user-typing"
	EventNewMessage     EventType = "new-message"
	EventError          EventType = "error"
)

func (e EventType) String() string {
	return string(e)
}

// IsClientEvent reports whether a client is allowed to emit e.
func (e EventType) IsClientEvent() bool {
	switch e {
	case EventRegisterUser, EventJoinChat, EventSendMessage, EventTyping:
		return true
	default:
		return false
	}
}

// Error codes carried by EventError.
const (
	CodeInvalidMessage   = "INVALID_MESSAGE"
	CodeInvalidPayload   = "INVALID_PAYLOAD"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeMessageNotStored = "MESSAGE_NOT_STORED"
	CodeForbidden        = "FORBIDDEN"
)

// Envelope is one event on the wire.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Event, err)
	}
	return nil
}

// Encode builds the wire form of an event.
func Encode(event EventType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Split parses a frame that may hold several newline separated envelopes.
// Blank lines are skipped.
func Split(frame []byte) ([]Envelope, error) {
	var out []Envelope
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return out, err
		}
		out = append(out, env)
	}
	return out, nil
}

// RegisterUserData is the payload of register-user. Older clients send the
// user id as a bare JSON string, newer ones send {"userId": "..."}.
type RegisterUserData struct {
	UserID string `json:"userId"`
}

func (d *RegisterUserData) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		d.UserID = id
		return nil
	}
	type plain RegisterUserData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = RegisterUserData(p)
	return nil
}

type JoinChatData struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

// SendMessageData asks the server to store and deliver a message.
// ReceiverID is optional for clients that only know the room id.
type SendMessageData struct {
	RoomID     string `json:"roomId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	Message    string `json:"message"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
}

type TypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ReceiveMessageData is broadcast to every connection in the room once the
// message is stored. ID is the durable message id.
type ReceiveMessageData struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	Message    string    `json:"message"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}

type UserTypingData struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// NewMessageData notifies a receiver regardless of the room it has open.
type NewMessageData struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
