package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketchat/internal/conversation"
	"marketchat/internal/models"

	"github.com/IBM/sarama"
)

const EventMessageCreated = "message.created"

func InitKafkaProducer(brokers []string, topic string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy  // Enable compression
	config.Producer.Partitioner = sarama.NewHashPartitioner // Consistent hashing
	config.Version = sarama.V2_0_0_0
	config.ClientID = "marketchat"
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create producer for topic %s: %w", topic, err)
	}

	return producer, nil
}

// MessageEvent is the record written for every stored message.
type MessageEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	MessageID  string    `json:"message_id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher writes message events to one topic, keyed by room id so a
// conversation stays on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) PublishMessageCreated(ctx context.Context, msg *models.Message) error {
	roomID := conversation.RoomID(msg.SenderID, msg.ReceiverID)
	payload, err := json.Marshal(MessageEvent{
		EventID:    models.NewMessageID(time.Now()),
		Type:       EventMessageCreated,
		MessageID:  msg.ID,
		RoomID:     roomID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(roomID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventMessageCreated)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s for message %s: %w", EventMessageCreated, msg.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
