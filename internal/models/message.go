package models

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

/** --------------------ENTITIES-------------------- */
// Message is a durable direct message between two users.
type Message struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id" bson:"_id"`
	SenderID   string    `gorm:"size:64;not null;index:idx_messages_pair,priority:1" json:"senderId" bson:"sender_id"`
	ReceiverID string    `gorm:"size:64;not null;index:idx_messages_pair,priority:2;index:idx_messages_unread,priority:1" json:"receiverId" bson:"receiver_id"`
	Content    string    `gorm:"type:text;not null" json:"content" bson:"content"`
	IsRead     bool      `gorm:"not null;default:false;index:idx_messages_unread,priority:2" json:"isRead" bson:"is_read"`
	CreatedAt  time.Time `gorm:"not null;index" json:"createdAt" bson:"created_at"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID for a message created at t. IDs created within
// the same millisecond are strictly increasing.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

/** -------------------- DTOs -------------------- */
// Request
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Content    string `json:"content" binding:"required"`
	SenderName string `json:"senderName,omitempty"`
}

// Response
type MessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type MessageResponse struct {
	Message *Message `json:"message"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type PresenceResponse struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
