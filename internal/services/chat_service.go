package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketchat/internal/conversation"
	"marketchat/internal/models"
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrEmptyContent  = errors.New("message content is empty")
)

// MessageStore is the durable message log. Implementations must be safe for
// concurrent use.
type MessageStore interface {
	Create(ctx context.Context, senderID, receiverID, content string) (*models.Message, error)
	// ListBetween returns the conversation of the pair ordered by creation time.
	ListBetween(ctx context.Context, userA, userB string) ([]*models.Message, error)
	// MarkRead flags every unread message from fromUserID to toUserID as read.
	MarkRead(ctx context.Context, fromUserID, toUserID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// MessageDeliverer pushes a stored message to live connections.
type MessageDeliverer interface {
	DeliverMessage(msg *models.Message, senderName string)
}

// EventPublisher forwards domain events to downstream consumers.
type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, msg *models.Message) error
}

// SendInput is one outgoing message.
type SendInput struct {
	SenderID   string
	ReceiverID string
	SenderName string
	Content    string
}

type ChatService struct {
	store     MessageStore
	deliverer MessageDeliverer
	events    EventPublisher

	publishTimeout time.Duration
}

// NewChatService wires the store with realtime delivery. deliverer and events
// may be nil.
func NewChatService(store MessageStore, deliverer MessageDeliverer, events EventPublisher) *ChatService {
	return &ChatService{
		store:          store,
		deliverer:      deliverer,
		events:         events,
		publishTimeout: 5 * time.Second,
	}
}

// SendMessage stores the message and only then hands the stored record to
// realtime delivery, so every broadcast carries a durable id.
func (s *ChatService) SendMessage(ctx context.Context, in SendInput) (*models.Message, error) {
	if !conversation.ValidUserID(in.SenderID) || !conversation.ValidUserID(in.ReceiverID) {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyContent
	}

	msg, err := s.store.Create(ctx, in.SenderID, in.ReceiverID, in.Content)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	if s.deliverer != nil {
		s.deliverer.DeliverMessage(msg, in.SenderName)
	}

	if s.events != nil {
		go s.publish(msg)
	}

	return msg, nil
}

func (s *ChatService) publish(msg *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	if err := s.events.PublishMessageCreated(ctx, msg); err != nil {
		slog.Error("Failed to publish message event", "messageID", msg.ID, "error", err)
	}
}

// History returns the conversation between userID and otherUserID.
func (s *ChatService) History(ctx context.Context, userID, otherUserID string) ([]*models.Message, error) {
	if !conversation.ValidUserID(userID) || !conversation.ValidUserID(otherUserID) {
		return nil, ErrInvalidUserID
	}
	msgs, err := s.store.ListBetween(ctx, userID, otherUserID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// MarkConversationRead marks everything otherUserID sent to readerID as read.
func (s *ChatService) MarkConversationRead(ctx context.Context, readerID, otherUserID string) (int64, error) {
	if !conversation.ValidUserID(readerID) || !conversation.ValidUserID(otherUserID) {
		return 0, ErrInvalidUserID
	}
	n, err := s.store.MarkRead(ctx, otherUserID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

func (s *ChatService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if !conversation.ValidUserID(userID) {
		return 0, ErrInvalidUserID
	}
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
